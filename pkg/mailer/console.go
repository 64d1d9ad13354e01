package mailer

import "go.uber.org/zap"

// ConsoleMailer logs messages instead of delivering them. Used in development
// and whenever no Sendgrid key is configured.
type ConsoleMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*ConsoleMailer)(nil)

// NewConsoleMailer builds a logging mailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send logs the message.
func (m *ConsoleMailer) Send(msg Message) error {
	m.logger.Info("outbound email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.PlainBody),
	)
	return nil
}
