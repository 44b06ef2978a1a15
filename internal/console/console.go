// Package console composes the subscription managers into the moderation
// console: channels from settings, mentions armed from identity, flags for
// staff, and the idle watcher coordinating pause/resume across all of them.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/chat"
	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/flags"
	"github.com/wrenna/modwatch/internal/identity"
	"github.com/wrenna/modwatch/internal/idle"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/mentions"
	"github.com/wrenna/modwatch/internal/settings"
)

// Console errors.
var (
	ErrMissingStore    = errors.New("document store is required")
	ErrMissingIdentity = errors.New("identity provider is required")
	ErrMissingSettings = errors.New("settings store is required")
)

// DefaultFocusTTL is how long a focused message pulses before clearing.
const DefaultFocusTTL = 3 * time.Second

// Options configures a Console.
type Options struct {
	Store         docstore.Store
	Identity      identity.Provider
	Settings      settings.Store
	Publisher     events.Publisher
	IdleThreshold time.Duration
	PollInterval  time.Duration
}

// Console is the root of the moderation console state graph.
type Console struct {
	store     docstore.Store
	identity  identity.Provider
	settings  settings.Store
	publisher events.Publisher
	logger    zerolog.Logger

	registry *chat.Registry
	mentions *mentions.Tracker
	flags    *flags.Tracker
	idleSt   *idle.State
	watcher  *idle.Watcher

	focusMu sync.Mutex
	focus   map[chat.Key]*time.Timer
}

// New wires the console together. The registry's room catalog is fetched
// during construction.
func New(ctx context.Context, opts Options) (*Console, error) {
	if opts.Store == nil {
		return nil, ErrMissingStore
	}
	if opts.Identity == nil {
		return nil, ErrMissingIdentity
	}
	if opts.Settings == nil {
		return nil, ErrMissingSettings
	}

	registry := chat.NewRegistry(ctx, opts.Store, opts.Publisher)
	mentionsTracker := mentions.NewTracker(opts.Store, opts.Publisher)
	flagsTracker := flags.NewTracker(opts.Store, opts.Publisher)

	state := idle.NewState(opts.IdleThreshold)
	watcher := idle.NewWatcher(state, opts.PollInterval, opts.Publisher,
		registry, mentionsTracker, flagsTracker)

	return &Console{
		store:     opts.Store,
		identity:  opts.Identity,
		settings:  opts.Settings,
		publisher: opts.Publisher,
		logger:    logging.Component("console"),
		registry:  registry,
		mentions:  mentionsTracker,
		flags:     flagsTracker,
		idleSt:    state,
		watcher:   watcher,
		focus:     make(map[chat.Key]*time.Timer),
	}, nil
}

// Start resolves identity, opens the persisted rooms, arms the trackers,
// and begins idle watching.
func (c *Console) Start(ctx context.Context) error {
	ident, err := c.identity.Identity()
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !ident.Ready || !ident.LoggedIn {
		return fmt.Errorf("identity not ready: %w", identity.ErrInvalidToken)
	}

	if ident.Staff {
		c.flags.Listen(ctx)
	} else {
		c.logger.Warn().Str("role", ident.Role).Msg("non-staff session, flag feed disabled")
	}

	// The username claim can be absent; the mentions tracker stays unarmed
	// until one is known.
	c.mentions.SetUsername(ctx, ident.Username)

	rooms, err := c.settings.Channels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open channels: %w", err)
	}
	for _, room := range rooms {
		c.registry.Listen(ctx, room)
	}

	if err := c.watcher.Start(ctx); err != nil {
		return err
	}

	c.logger.Info().
		Int("rooms", len(rooms)).
		Str("username", ident.Username).
		Bool("staff", ident.Staff).
		Msg("console started")
	return nil
}

// Stop halts idle watching and tears down every live subscription.
func (c *Console) Stop() {
	if err := c.watcher.Stop(); err != nil && !errors.Is(err, idle.ErrWatcherNotRunning) {
		c.logger.Warn().Err(err).Msg("failed to stop idle watcher")
	}

	for _, room := range c.registry.OpenRooms() {
		c.registry.Unlisten(room)
	}
	c.mentions.Unlisten()
	c.flags.Unlisten()

	c.focusMu.Lock()
	for key, timer := range c.focus {
		timer.Stop()
		delete(c.focus, key)
	}
	c.focusMu.Unlock()

	c.logger.Info().Msg("console stopped")
}

// OpenChannel persists the room and starts mirroring it.
func (c *Console) OpenChannel(ctx context.Context, room string) (*chat.Channel, error) {
	if err := c.settings.AddChannel(ctx, room); err != nil {
		return nil, err
	}
	return c.registry.Listen(ctx, room), nil
}

// CloseChannel removes the room from settings and discards its channel.
func (c *Console) CloseChannel(ctx context.Context, room string) error {
	if err := c.settings.RemoveChannel(ctx, room); err != nil {
		return err
	}
	c.registry.Unlisten(room)
	return nil
}

// Ping records user activity and forces an immediate idle re-evaluation so
// a resume is not delayed by the poll cadence.
func (c *Console) Ping() {
	c.idleSt.Ping()
	c.watcher.Poke()
}

// FocusMessage marks a message focused for ttl. A pending clear timer for
// the same message is cancelled and restarted.
func (c *Console) FocusMessage(room, id string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultFocusTTL
	}
	key := chat.Key{Room: room, ID: id}

	c.focusMu.Lock()
	defer c.focusMu.Unlock()

	if timer, ok := c.focus[key]; ok {
		timer.Stop()
	}
	c.focus[key] = time.AfterFunc(ttl, func() {
		c.focusMu.Lock()
		delete(c.focus, key)
		c.focusMu.Unlock()
	})
}

// Focused reports whether a message is currently focused.
func (c *Console) Focused(room, id string) bool {
	c.focusMu.Lock()
	defer c.focusMu.Unlock()
	_, ok := c.focus[chat.Key{Room: room, ID: id}]
	return ok
}

// Registry exposes the channel registry.
func (c *Console) Registry() *chat.Registry {
	return c.registry
}

// Mentions exposes the mentions tracker.
func (c *Console) Mentions() *mentions.Tracker {
	return c.mentions
}

// Flags exposes the flags tracker.
func (c *Console) Flags() *flags.Tracker {
	return c.flags
}

// Idle exposes the idle state for interaction plumbing.
func (c *Console) Idle() *idle.State {
	return c.idleSt
}

// Watcher exposes the idle watcher.
func (c *Console) Watcher() *idle.Watcher {
	return c.watcher
}
