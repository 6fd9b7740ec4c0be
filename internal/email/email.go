// Package email delivers the verification and reset mail the identity flows
// send. Delivery is fire-and-forget from the caller's point of view: a send
// failure is logged, never surfaced into the identity operation.
package email

import (
	"go.uber.org/zap"

	"github.com/astralhq/identity/internal/observability/logger"
)

// Sender delivers one message.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SendAsync dispatches in a goroutine and logs the outcome. Identity
// operations never block on, or fail because of, mail delivery.
func SendAsync(s Sender, to, subject, htmlBody, textBody string) {
	go func() {
		if err := s.Send(to, subject, htmlBody, textBody); err != nil {
			logger.Named("email").Warn("send failed",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}

// LogSender is a dev/test Sender that only logs the message.
type LogSender struct{}

func (LogSender) Send(to, subject, _, textBody string) error {
	logger.Named("email").Info("email (log sender)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", textBody),
	)
	return nil
}
