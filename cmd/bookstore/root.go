// cmd/bookstore/root.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"bookstore/internal/config"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	envFile string
	verbose bool
	memory  bool
	cfg     *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "bookstore",
		Short:         "Bookstore borrowing and inventory core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			var files []string
			if opts.envFile != "" {
				files = append(files, opts.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "use the in-process store instead of Postgres")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}
