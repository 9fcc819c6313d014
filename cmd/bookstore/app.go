// cmd/bookstore/app.go
package main

import (
	"context"
	"fmt"
	"log/slog"

	"bookstore/internal/cart"
	"bookstore/internal/catalog"
	"bookstore/internal/circulation"
	"bookstore/internal/config"
	"bookstore/internal/eventlog"
	"bookstore/internal/membership"
	"bookstore/internal/notify"
	"bookstore/internal/pricing"
	"bookstore/internal/store"
	"bookstore/internal/store/memstore"
	"bookstore/internal/store/postgres"
	"bookstore/internal/waitlist"
)

// app is the wired core.
type app struct {
	store       store.Store
	circulation circulation.Service
	waitlist    *waitlist.Manager
	catalog     catalog.Service
	cart        cart.Service
	membership  membership.Service
}

func openStore(ctx context.Context, cfg *config.Config, memory bool) (store.Store, error) {
	if memory {
		return memstore.New(), nil
	}
	s, err := postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.NotifyURL == "" {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewHTTPNotifier(cfg.NotifyURL,
		notify.WithToken(cfg.NotifyToken),
		notify.WithRatePerMinute(cfg.NotifyRatePerMin),
	)
}

func newApp(s store.Store, cfg *config.Config, notifier notify.Notifier, logger *slog.Logger) *app {
	events := eventlog.New()
	engine := pricing.NewEngine(s)

	queue := waitlist.NewManager(s, notifier, events, waitlist.WithLogger(logger))
	circ := circulation.NewService(s, queue, events,
		circulation.WithLimit(cfg.BorrowLimit),
		circulation.WithLoanPeriod(cfg.LoanPeriod),
		circulation.WithLogger(logger),
	)

	return &app{
		store:       s,
		circulation: circ,
		waitlist:    queue,
		catalog: catalog.NewService(s, engine, queue, events,
			catalog.WithMaxDiscountWindow(cfg.MaxDiscountWindow),
			catalog.WithLogger(logger),
		),
		cart:       cart.NewService(s, engine, circ, events, cart.WithLogger(logger)),
		membership: membership.NewService(s, events, membership.WithLogger(logger)),
	}
}
