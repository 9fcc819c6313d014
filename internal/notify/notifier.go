// internal/notify/notifier.go

// Package notify delivers waiting-list emails. Delivery is best effort: the
// caller has already committed its state change by the time Send runs.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier sends one HTML message to one address.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that only logs. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, to, subject, _ string) error {
	n.logger.InfoContext(ctx, "notification", "to", to, "subject", subject)
	return nil
}

// Message is one captured Send call.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Recorder captures messages in memory and can be told to fail.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent sends return err. Pass nil to recover.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Send(_ context.Context, to, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, Message{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
