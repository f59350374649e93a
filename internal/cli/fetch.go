//go:build linux || darwin || freebsd

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/axondata/go-buildio"
)

func newFetchCmd(ctx *context) *cobra.Command {
	var output string
	var mode uint32

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download a URL to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if output != "" {
				result, err := buildio.DownloadToFile(cmd.Context(), engine, args[0], output, os.FileMode(mode))
				if err != nil {
					return err
				}
				reportResult(cmd, result)
				return nil
			}

			result, src, err := engine.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			if err := buildio.DrainInto(src, cmd.OutOrStdout()); err != nil {
				return err
			}
			reportResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the body to this file instead of stdout")
	cmd.Flags().Uint32Var(&mode, "mode", 0o644, "Mode of the output file")
	return cmd
}

func reportResult(cmd *cobra.Command, result *buildio.TransferResult) {
	out := cmd.ErrOrStderr()
	for _, hop := range result.Hops {
		fmt.Fprintf(out, "redirect %d -> %s\n", hop.StatusCode, hop.Location)
	}
	if result.ImmutableURL != "" {
		fmt.Fprintf(out, "immutable: %s\n", result.ImmutableURL)
	}
}

func newPrefetchCmd(ctx *context) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "prefetch URL...",
		Short: "Download several URLs into a directory concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			defer engine.Close()

			var opts []buildio.PrefetchOption
			if ctx.config.Concurrency > 0 {
				opts = append(opts, buildio.WithConcurrency(ctx.config.Concurrency))
			}
			p := buildio.NewPrefetcher(engine, opts...)

			items := make([]buildio.PrefetchItem, 0, len(args))
			for _, u := range args {
				items = append(items, buildio.PrefetchItem{URL: u, Path: filepath.Join(dir, filepath.Base(u))})
			}

			results, err := p.Prefetch(cmd.Context(), items...)
			for _, it := range items {
				if _, ok := results[it.URL]; ok {
					fmt.Fprintln(cmd.OutOrStdout(), it.Path)
				}
			}
			if merr, ok := err.(*buildio.MultiError); ok {
				for _, e := range merr.Errors {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to download into")
	return cmd
}
