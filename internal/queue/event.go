// Package queue carries outbound mail tasks over RabbitMQ.
package queue

import (
	"fmt"
	"time"
)

// MailKind selects the template the worker renders.
type MailKind string

const (
	MailForgotPassword  MailKind = "forgot_password"
	MailPasswordChanged MailKind = "password_changed"
)

// MailEvent is published by the API and consumed by the mail worker. It
// has everything needed to send the message without reading the database.
type MailEvent struct {
	Kind     MailKind  `json:"kind"`
	Email    string    `json:"email"`
	Link     string    `json:"link,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// Validate rejects events the worker could never deliver.
func (e MailEvent) Validate() error {
	switch e.Kind {
	case MailForgotPassword:
		if e.Link == "" {
			return fmt.Errorf("queue: %s event without link", e.Kind)
		}
	case MailPasswordChanged:
	default:
		return fmt.Errorf("queue: unknown mail kind %q", e.Kind)
	}
	if e.Email == "" {
		return fmt.Errorf("queue: %s event without email", e.Kind)
	}
	return nil
}
