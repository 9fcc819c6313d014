// cmd/bookstore/admin.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"bookstore/internal/circulation"
	"bookstore/internal/invariants"
	"bookstore/internal/store/postgres"

	"github.com/spf13/cobra"
)

var errViolations = errors.New("invariant violations found")

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := postgres.Open(ctx, opts.cfg.DBDriver, opts.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			slog.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue borrows once and advance waiting lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts.cfg, opts.memory)
			if err != nil {
				return err
			}
			defer s.Close()

			logger := slog.Default()
			a := newApp(s, opts.cfg, newNotifier(opts.cfg, logger), logger)
			report, err := circulation.NewSweeper(a.circulation, logger).Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the store for invariant violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts.cfg, opts.memory)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := invariants.NewChecker(s).Defaults(opts.cfg.BorrowLimit).Run(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Healthy() {
				return fmt.Errorf("%w: %d", errViolations, len(report.Violations))
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
