package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/axondata/go-buildio"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildio.GetVersion()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "buildio %s\n", info.Version)
			if info.GoVersion != "" {
				fmt.Fprintf(out, "go: %s\n", info.GoVersion)
			}
			fmt.Fprintf(out, "decoders: %s\n", strings.Join(info.Decoders, ", "))
			return nil
		},
	}
}
