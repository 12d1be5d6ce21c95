package notifications

import "context"

// Channel delivers a text message to a destination address. Ordinary delivery
// failures are reported by returning false, never by panicking or erroring.
type Channel interface {
	Send(ctx context.Context, destination, message string) bool
}
