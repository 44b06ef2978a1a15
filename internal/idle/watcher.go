package idle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
)

// Watcher errors.
var (
	ErrWatcherAlreadyRunning = errors.New("watcher already running")
	ErrWatcherNotRunning     = errors.New("watcher not running")
)

// DefaultPollInterval is how often the watcher re-evaluates the idle state.
const DefaultPollInterval = 5 * time.Second

// PauseResumer is a subscription manager that can shed and re-establish its
// live stream.
type PauseResumer interface {
	Pause()
	Resume(ctx context.Context)
}

// Watcher re-evaluates the idle state on a cadence (and on Poke) and, on
// each edge, pauses or resumes every target as one coordinated batch.
type Watcher struct {
	state     *State
	targets   []PauseResumer
	interval  time.Duration
	publisher events.Publisher
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	idle    bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	poke    chan struct{}
}

// NewWatcher creates a watcher over the given targets.
func NewWatcher(state *State, interval time.Duration, publisher events.Publisher, targets ...PauseResumer) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		state:     state,
		targets:   targets,
		interval:  interval,
		publisher: publisher,
		logger:    logging.Component("idle-watcher"),
		poke:      make(chan struct{}, 1),
	}
}

// Start begins the evaluation loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrWatcherAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.logger.Info().
		Dur("threshold", w.state.Threshold()).
		Dur("interval", w.interval).
		Msg("idle watcher starting")

	w.wg.Add(1)
	go w.runLoop(loopCtx)

	return nil
}

// Stop halts the evaluation loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrWatcherNotRunning
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	return nil
}

// Poke forces an immediate re-evaluation, typically right after a Ping so a
// resume is not delayed by the poll cadence.
func (w *Watcher) Poke() {
	select {
	case w.poke <- struct{}{}:
	default:
	}
}

// Idle returns the last observed idle state.
func (w *Watcher) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

func (w *Watcher) runLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.evaluate(ctx)
		case <-w.poke:
			w.evaluate(ctx)
		}
	}
}

// evaluate observes the idle boolean and drives the batch on an edge.
func (w *Watcher) evaluate(ctx context.Context) {
	idle := w.state.Idle()

	w.mu.Lock()
	if idle == w.idle {
		w.mu.Unlock()
		return
	}
	w.idle = idle
	targets := w.targets
	w.mu.Unlock()

	if idle {
		w.logger.Info().Msg("idle threshold reached, pausing streams")
		for _, target := range targets {
			target.Pause()
		}
	} else {
		w.logger.Info().Msg("activity detected, resuming streams")
		for _, target := range targets {
			target.Resume(ctx)
		}
	}

	if w.publisher != nil {
		event := events.NewEvent(models.EventTypeIdleChanged, models.EntityTypeIdle, "idle")
		event.Payload = map[string]any{"idle": idle}
		w.publisher.Publish(event)
	}
}
