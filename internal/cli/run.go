//go:build linux || darwin || freebsd

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axondata/go-buildio"
)

func newRunCmd(ctx *context) *cobra.Command {
	var (
		capture  bool
		merge    bool
		chdir    string
		newGroup bool
	)

	cmd := &cobra.Command{
		Use:   "run -- PROGRAM [ARGS...]",
		Short: "Run a program and report how it exited",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := buildio.RunOptions{
				Program:              args[0],
				Args:                 args[1:],
				SearchPath:           true,
				MergeStderrToStdout:  merge,
				Chdir:                chdir,
				SeparateProcessGroup: newGroup,
				DieWithParent:        true,
				IsInteractive:        ctx.interactive && !capture,
			}

			if capture {
				out, err := buildio.RunProgram(cmd.Context(), opts)
				fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}

			p, err := buildio.RunExternalProgram(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer p.Close()
			err = p.Wait(cmd.Context())
			if errors.Is(err, buildio.ErrInterrupted) {
				status, kerr := p.Kill()
				if kerr != nil {
					return kerr
				}
				fmt.Fprintf(os.Stderr, "%s: %s\n", opts.Program, buildio.StatusToString(status))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&capture, "capture", false, "Capture stdout and print it once the program exits")
	cmd.Flags().BoolVar(&merge, "merge-stderr", false, "Send stderr to stdout")
	cmd.Flags().StringVar(&chdir, "chdir", "", "Working directory of the program")
	cmd.Flags().BoolVar(&newGroup, "new-group", false, "Run the program in its own process group")
	return cmd
}
