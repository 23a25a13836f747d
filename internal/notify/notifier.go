package notify

import "context"

// Notifier delivers a message out of band. Delivery failure is propagated to
// the caller; nothing is retried here.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
