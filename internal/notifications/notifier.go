// Package notifications tells operators about paid orders. Delivery is best
// effort and driven from the outbox, never from the request that caused it.
package notifications

import "context"

// Message is a plain-text operator notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier is one delivery channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}
