package mail

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMailer logs reset links instead of dispatching them. Dev/test backend,
// the moral equivalent of a throwaway SMTP test account.
type LogMailer struct {
	log *logrus.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *logrus.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// SendPasswordReset logs the reset link.
func (m *LogMailer) SendPasswordReset(_ context.Context, to, resetURL string, expiresAt time.Time) error {
	m.log.WithFields(logrus.Fields{
		"to":         to,
		"reset_url":  resetURL,
		"expires_at": expiresAt.Format(time.RFC3339),
	}).Info("password reset mail (log backend)")
	return nil
}
