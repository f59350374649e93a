package buildio

import (
	"syscall"
	"time"
)

// Transfer engine defaults
const (
	// DefaultMaxRedirects is the number of redirect hops a transfer may follow
	DefaultMaxRedirects = 10

	// DefaultBufferSize is the capacity of the per-transfer buffer between the
	// network worker and the consumer
	DefaultBufferSize = 1 << 20

	// DefaultConnectTimeout is the timeout for establishing a connection
	DefaultConnectTimeout = 30 * time.Second

	// DefaultStallTimeout is how long a body may deliver no bytes before the
	// transfer fails
	DefaultStallTimeout = 300 * time.Second

	// DefaultEngineStopGrace is the grace period given to transfer workers
	// when an engine is closed
	DefaultEngineStopGrace = 100 * time.Millisecond

	// DefaultEngineCloseTimeout bounds how long Close waits for workers
	DefaultEngineCloseTimeout = 5 * time.Second

	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "go-buildio/" + Version

	// maxErrorBody bounds how much of a failed response body is kept for
	// error messages
	maxErrorBody = 8 * 1024

	// maxRedirectBody bounds how much of a redirect body is drained so the
	// connection can be reused
	maxRedirectBody = 64 * 1024
)

// Process defaults
const (
	// DefaultKillSignal is the signal sent by Handle.Kill
	DefaultKillSignal = syscall.SIGKILL

	// DefaultWaitPollMin is the first interval between exit status polls
	DefaultWaitPollMin = 1 * time.Millisecond

	// DefaultWaitPollMax caps the interval between exit status polls, and
	// therefore the latency of noticing an interrupt
	DefaultWaitPollMax = 50 * time.Millisecond

	// DefaultCacheDisableDuration is how long a failing binary cache is
	// disabled when fallback is enabled
	DefaultCacheDisableDuration = 60 * time.Second
)

// Operation identifies the step that failed in an OpError
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpSpawn starts a child running a registered body
	OpSpawn
	// OpExec starts an external program
	OpExec
	// OpPipe creates the output capture pipe
	OpPipe
	// OpWait reaps a child process
	OpWait
	// OpKill signals a child process
	OpKill
	// OpDownload retrieves a URL
	OpDownload
	// OpOpen opens a local file
	OpOpen
	// OpRead reads from a file descriptor
	OpRead
	// OpWrite writes a downloaded file into place
	OpWrite
	// OpConfig loads configuration
	OpConfig
)

// Operation string constants
const (
	opUnknownStr  = "unknown"
	opSpawnStr    = "spawn"
	opExecStr     = "exec"
	opPipeStr     = "pipe"
	opWaitStr     = "wait"
	opKillStr     = "kill"
	opDownloadStr = "download"
	opOpenStr     = "open"
	opReadStr     = "read"
	opWriteStr    = "write"
	opConfigStr   = "config"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpSpawn:
		return opSpawnStr
	case OpExec:
		return opExecStr
	case OpPipe:
		return opPipeStr
	case OpWait:
		return opWaitStr
	case OpKill:
		return opKillStr
	case OpDownload:
		return opDownloadStr
	case OpOpen:
		return opOpenStr
	case OpRead:
		return opReadStr
	case OpWrite:
		return opWriteStr
	case OpConfig:
		return opConfigStr
	default:
		return opUnknownStr
	}
}
