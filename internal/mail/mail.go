// Package mail dispatches password-reset email to the out-of-process mail
// worker. The service only publishes; rendering and SMTP delivery belong to
// the worker consuming the channel.
package mail

import (
	"context"
	"encoding/json"
	"time"
)

// ResetChannel is the broker channel reset mail is dispatched on.
const ResetChannel = "email.password-reset"

// ResetMessage is the payload handed to the mail worker.
type ResetMessage struct {
	To        string    `json:"to"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Mailer hands a password-reset link to the delivery pipeline. An error
// means delivery was not handed off and the caller must fail the request.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string, expiresAt time.Time) error
}

// Publisher sends a payload to a named broker channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// QueueMailer publishes reset mail to a broker channel.
type QueueMailer struct {
	publisher Publisher
}

// NewQueueMailer constructs a QueueMailer over the provided broker.
func NewQueueMailer(publisher Publisher) *QueueMailer {
	return &QueueMailer{publisher: publisher}
}

// SendPasswordReset marshals the reset message and publishes it.
func (m *QueueMailer) SendPasswordReset(ctx context.Context, to, resetURL string, expiresAt time.Time) error {
	data, err := json.Marshal(ResetMessage{
		To:        to,
		ResetURL:  resetURL,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}
	_, err = m.publisher.Publish(ctx, ResetChannel, data, map[string]string{
		"type": "password-reset",
	})
	return err
}

// Close closes the underlying broker connection.
func (m *QueueMailer) Close() error {
	return m.publisher.Close()
}
