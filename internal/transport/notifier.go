package transport

import (
	"context"
	"log/slog"
)

// Notifier delivers messages to a chat thread.
type Notifier interface {
	Notify(ctx context.Context, thread string, msgs ...OutgoingMessage) error
}

// LogNotifier writes messages to the structured log. It is used when no chat
// webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs each message.
func (n *LogNotifier) Notify(_ context.Context, thread string, msgs ...OutgoingMessage) error {
	for _, m := range msgs {
		if m.Summary != nil {
			n.logger.Info("chat summary",
				slog.String("thread", thread),
				slog.String("title", m.Summary.Title),
				slog.String("tone", string(m.Summary.Tone)),
				slog.Int("fields", len(m.Summary.Fields)),
			)
			continue
		}
		n.logger.Info("chat message", slog.String("thread", thread), slog.String("text", m.Text))
	}
	return nil
}

// Fanout delivers to every notifier and returns the first error.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, thread string, msgs ...OutgoingMessage) error {
	var first error
	for _, n := range f {
		if err := n.Notify(ctx, thread, msgs...); err != nil && first == nil {
			first = err
		}
	}
	return first
}
