// Package buildio is the execution and I/O layer of a build manager: it
// starts processes, supervises them to completion, and moves bytes between
// them and the network.
//
// Every producer of bytes is a Source, a pull-based stream that ends with
// io.EOF or a failure. Captured process output and downloaded bodies are
// both Sources and drain the same way:
//
//	out, err := buildio.RunProgram(ctx, buildio.RunOptions{
//	    Program:    "git",
//	    Args:       []string{"rev-parse", "HEAD"},
//	    SearchPath: true,
//	})
//
// # Processes
//
// RunExternalProgram executes a program image and returns a RunningProgram
// without waiting for it. Spawn runs a body registered with RegisterBody in
// a re-executed copy of the current binary, for work that must happen in a
// child with switched credentials or namespaces. Both are owned by a Handle
// that must be finalized by Wait, Kill or Release:
//
//	p, err := buildio.RunExternalProgram(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer p.Finish(&err)
//
// Binaries that spawn bodies call InitChild first thing in main.
//
// # Transfers
//
// The Engine downloads http, https and file URLs. Download returns once the
// response headers are known, with a TransferResult describing the redirect
// chain and any immutable link the server advertised, and a Source for the
// decoded body. Failures before the body are setup failures returned by
// Download; failures while streaming are deferred to the Source:
//
//	engine := buildio.NewEngine(buildio.WithMaxRedirects(5))
//	defer engine.Close()
//
//	result, src, err := engine.Download(ctx, "https://cache.example/nix-cache-info")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//	body, err := buildio.Drain(src)
//
// Every transfer has its own bounded buffer and worker, so a consumer that
// stops reading never holds up the others.
//
// # Interrupts
//
// Waits and transfer setup check a process-wide interrupt flag raised by
// TriggerInterrupt or by NotifyInterrupt on SIGINT. An interrupted wait
// returns ErrInterrupted and leaves the process running for the caller to
// kill.
package buildio
