// cmd/bookstore/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/cart"
	"bookstore/internal/catalog"
	"bookstore/internal/circulation"
	"bookstore/internal/httpapi"
	"bookstore/internal/membership"
	"bookstore/internal/store/postgres"
	"bookstore/internal/telemetry"
	"bookstore/internal/waitlist"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and run the overdue sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, !noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not schedule the overdue sweep")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, sweep bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := opts.cfg
	logger := slog.Default()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	s, err := openStore(ctx, cfg, opts.memory)
	if err != nil {
		return err
	}
	defer s.Close()
	if pg, ok := s.(*postgres.Store); ok {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	a := newApp(s, cfg, newNotifier(cfg, logger), logger)

	if sweep {
		sweeper := circulation.NewSweeper(a.circulation, logger)
		if err := sweeper.Start(cfg.SweepSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.NewRouter(logger,
			catalog.NewHandler(a.catalog),
			circulation.NewHandler(a.circulation),
			waitlist.NewHandler(a.waitlist),
			cart.NewHandler(a.cart),
			membership.NewHandler(a.membership),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "memory", opts.memory)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
