// Package channel is the thin boundary between a messaging platform and
// the core brain (§1 scope: "no channel adapters beyond a named interface
// stub"). A Channel turns platform events into agent turns and consults
// the door policy before doing anything else.
package channel

import "context"

// Channel is implemented once per messaging platform (Discord, Telegram,
// WhatsApp, ...). Start blocks until ctx is cancelled or the platform
// connection fails unrecoverably.
type Channel interface {
	Start(ctx context.Context) error
	Name() string
}

