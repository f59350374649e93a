//go:build linux || darwin || freebsd

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axondata/go-buildio"
)

func newCacheCmd(ctx *context) *cobra.Command {
	var uri string

	cmd := &cobra.Command{
		Use:   "cache PATH",
		Short: "Print a file from a binary cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			defer engine.Close()

			var opts []buildio.BinaryCacheOption
			if cfg := ctx.config.Cache; cfg != nil {
				if uri == "" {
					uri = cfg.URI
				}
				if opts, err = cfg.CacheOptions(); err != nil {
					return fmt.Errorf("%s: %w", ctx.configFile, err)
				}
			}
			if uri == "" {
				return fmt.Errorf("no binary cache given; use --uri or the cache section of the configuration")
			}

			cache, err := buildio.NewBinaryCache(engine, uri, opts...)
			if err != nil {
				return err
			}
			data, ok, err := cache.GetFileContents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", buildio.ErrNoSuchFile, args[0])
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "Binary cache URI")
	return cmd
}
