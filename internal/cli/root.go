//go:build linux || darwin || freebsd

// Package cli implements the buildio command line.
package cli

import (
	stdcontext "context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/axondata/go-buildio"
)

// context carries the persistent flags to subcommands
type context struct {
	configFile  string
	interactive bool
	verbose     bool

	config *buildio.EngineConfig
}

// engine builds a transfer engine from the loaded configuration
func (c *context) engine() (*buildio.Engine, error) {
	opts, err := c.config.Options()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.configFile, err)
	}
	return buildio.NewEngine(opts...), nil
}

func NewRootCmd() *cobra.Command {
	ctx := &context{config: &buildio.EngineConfig{}}

	root := &cobra.Command{
		Use:   "buildio",
		Short: "Run build helpers and fetch build inputs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if ctx.verbose {
				level = slog.LevelDebug
			}
			buildio.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			if ctx.configFile == "" {
				return nil
			}
			cfg, err := buildio.LoadEngineConfig(ctx.configFile)
			if err != nil {
				return err
			}
			ctx.config = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&ctx.configFile, "config", "c", "", "Path to engine configuration (YAML)")
	root.PersistentFlags().BoolVar(&ctx.interactive, "interactive", term.IsTerminal(int(os.Stdin.Fd())), "Hold log output while a program owns the terminal")
	root.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newFetchCmd(ctx))
	root.AddCommand(newPrefetchCmd(ctx))
	root.AddCommand(newExistsCmd(ctx))
	root.AddCommand(newCacheCmd(ctx))
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	stop := buildio.NotifyInterrupt()
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
