package mailer

import (
	"context"
	"log/slog"

	"github.com/samiralam04/Note-app/pkg/logger"
)

// LogMailer writes messages to the log instead of sending them. It is meant
// for local development without an SMTP server.
type LogMailer struct {
	logger      *slog.Logger
	includeBody bool
}

// NewLogMailer creates a log mailer. When includeBody is true the HTML body,
// which carries the login code, is logged as well.
func NewLogMailer(l *slog.Logger, includeBody bool) *LogMailer {
	return &LogMailer{logger: l, includeBody: includeBody}
}

// Name returns the transport name.
func (m *LogMailer) Name() string {
	return "log"
}

// Send logs msg and always succeeds.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	attrs := []any{
		slog.String("to", logger.MaskEmail(msg.To)),
		slog.String("subject", msg.Subject),
	}
	if m.includeBody {
		attrs = append(attrs, slog.String("body", msg.HTML))
	}
	m.logger.InfoContext(ctx, "log mailer: message not sent", attrs...)
	return nil
}
