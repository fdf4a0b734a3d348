package report

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EmailSender delivers a rendered report to recipients.
type EmailSender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// StubSender logs instead of sending. It rejects obviously bad recipients
// so failure paths stay testable without a mail server.
type StubSender struct{}

func (s *StubSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return eris.New("email: no recipients")
	}
	for _, r := range recipients {
		if strings.Contains(r, "invalid@email") {
			return eris.Errorf("email: delivery failed for %s", r)
		}
	}
	zap.L().Info("email sent",
		zap.Strings("recipients", recipients),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
