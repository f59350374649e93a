//go:build linux || darwin || freebsd

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errMissing = errors.New("not found")

func newExistsCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "exists URL",
		Short: "Check whether a URL can be retrieved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ok, err := engine.Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errMissing)
			}
			fmt.Fprintln(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
}
