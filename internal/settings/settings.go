// Package settings persists the moderator's console settings, currently the
// ordered list of open rooms.
package settings

import "context"

// Store persists the ordered open-channel list. Adds and removes are
// persisted immediately; both are no-ops when the channel is already in the
// desired state.
type Store interface {
	// Channels returns the open channels in the order they were added.
	Channels(ctx context.Context) ([]string, error)

	// AddChannel appends a channel if not already present.
	AddChannel(ctx context.Context, name string) error

	// RemoveChannel removes a channel if present.
	RemoveChannel(ctx context.Context, name string) error

	// Close releases the backing resources.
	Close() error
}
