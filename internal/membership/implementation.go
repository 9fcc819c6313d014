// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Option configures the service.
type Option func(*service)

// WithRateLimit allows burst registrations and then one every interval.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(s *service) {
		s.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// service implements the Service interface.
type service struct {
	store    store.Store
	events   *eventlog.Log
	limiter  *rate.Limiter
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a new membership service instance.
func NewService(s store.Store, events *eventlog.Log, opts ...Option) Service {
	svc := &service{
		store:    s,
		events:   events,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 20),
		validate: validator.New(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates a user. Email addresses are unique, compared case-insensitively.
func (s *service) Register(ctx context.Context, email, name string) (*model.User, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	in := Registration{Email: strings.ToLower(strings.TrimSpace(email)), Name: strings.TrimSpace(name)}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, model.Errorf(model.ErrInvalidInput, "field %s fails %q", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, model.Errorf(model.ErrInvalidInput, "%v", err)
	}

	user := &model.User{
		ID:        uuid.New(),
		Email:     in.Email,
		Name:      in.Name,
		CreatedAt: s.now().UTC(),
	}
	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, user); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, user.ID, eventlog.AggregateUser, 0, eventlog.Record{
			EventType: eventlog.UserRegistered,
			Data:      eventlog.UserEvent{Email: user.Email, Name: user.Name},
		})
	})
	if err != nil {
		return nil, model.Infra("register user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// GetUser retrieves a user by id.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, model.Infra("get user", err)
	}
	return user, nil
}

// ListUsers returns every registered user.
func (s *service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, model.Infra("list users", err)
	}
	return users, nil
}
