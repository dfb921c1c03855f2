package feud

import (
	"context"
	"sync"
	"time"

	"github.com/Seednode/chungsuc/clock"
	"github.com/Seednode/chungsuc/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StrikeFlash is how long showStrike stays set after a strike.
const StrikeFlash = 2 * time.Second

// Recorder receives operation and sync counts. It must be safe for
// concurrent use.
type Recorder interface {
	Operation(name string)
	SyncApplied()
	SyncRejected()
}

type nopRecorder struct{}

func (nopRecorder) Operation(string) {}
func (nopRecorder) SyncApplied()     {}
func (nopRecorder) SyncRejected()    {}

// Config holds the collaborators of a Store. Clock, Logger and Metrics
// default when nil. A nil KV keeps the store in memory and a nil Bus keeps
// it from announcing writes.
type Config struct {
	KV      storage.KV
	Bus     storage.Bus
	Key     string
	Clock   clock.Clock
	Logger  logrus.FieldLogger
	Metrics Recorder
}

// Store is the single source of truth for one instance. All writes go
// through its operations; readers get deep-copied snapshots.
type Store struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	state  *GameState
	closed bool

	kv      storage.KV
	bus     storage.Bus
	key     string
	origin  string
	clock   clock.Clock
	log     logrus.FieldLogger
	metrics Recorder

	degraded    bool
	strikeTimer clock.Timer

	nextListener int
	listeners    map[int]func(*GameState)
}

// New builds a store and loads the persisted state. Missing or malformed
// data falls back to DefaultState; it is never an error.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	s := &Store{
		kv:        cfg.KV,
		bus:       cfg.Bus,
		key:       cfg.Key,
		origin:    uuid.NewString(),
		clock:     cfg.Clock,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		listeners: make(map[int]func(*GameState)),
	}

	if s.key == "" {
		s.key = DefaultStateKey
	}
	if s.clock == nil {
		s.clock = &clock.DefaultClock{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}

	s.log = s.log.WithFields(logrus.Fields{"key": s.key, "origin": s.origin})

	s.state = s.load(ctx)

	return s, nil
}

func (s *Store) load(ctx context.Context) *GameState {
	if s.kv == nil {
		s.log.Warn("no persistence configured, state is kept in memory only")

		return DefaultState()
	}

	raw, ok, err := s.kv.Get(ctx, s.key)
	switch {
	case err != nil:
		s.degraded = true
		s.log.WithError(err).Warn("unable to read persisted state, continuing in memory")

		return DefaultState()
	case !ok:
		s.log.Info("no persisted state, starting from defaults")

		return DefaultState()
	}

	st, err := Parse([]byte(raw))
	if err != nil {
		s.log.WithError(err).Error("failed to parse saved game state, starting from defaults")

		st = DefaultState()
		s.write(ctx, st)

		return st
	}

	return st
}

// Key returns the storage key this store persists to
func (s *Store) Key() string {
	return s.key
}

// Origin identifies this instance on the bus
func (s *Store) Origin() string {
	return s.origin
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Clone()
}

// Subscribe registers fn to receive a snapshot after every change, in
// change order. fn must not call store operations synchronously.
func (s *Store) Subscribe(fn func(*GameState)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close cancels pending timers. Operations and timer callbacks that arrive
// afterwards are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	if s.strikeTimer != nil {
		s.strikeTimer.Stop()
		s.strikeTimer = nil
	}
}

// mutate applies fn to a copy of the state. fn reports whether anything
// changed; a change that fails validation is dropped. Accepted changes are
// persisted and announced before mutate returns.
func (s *Store) mutate(ctx context.Context, op string, fn func(st *GameState) bool) bool {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return false
	}

	next := s.state.Clone()
	if !fn(next) {
		s.mu.Unlock()
		s.log.WithField("op", op).Debug("operation had no effect")

		return false
	}

	if err := Validate(next); err != nil {
		s.mu.Unlock()
		s.log.WithField("op", op).WithError(err).Warn("operation rejected")

		return false
	}

	s.state = next
	s.write(ctx, next)
	s.publishLocked(ctx, next)

	s.notifyLocked(next)

	s.metrics.Operation(op)

	return true
}

// replace swaps in a state received from another instance. It is not
// written back, which would echo the change between instances forever.
func (s *Store) replace(st *GameState) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.state = st
	s.notifyLocked(st)
}

// notifyLocked is entered with s.mu held and releases it. Holding notifyMu
// across the hand-off keeps listener calls in the same order as changes.
func (s *Store) notifyLocked(st *GameState) {
	listeners := make([]func(*GameState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st.Clone())
	}
}

func (s *Store) write(ctx context.Context, st *GameState) {
	if s.kv == nil {
		return
	}

	data, err := Marshal(st)
	if err != nil {
		s.log.WithError(err).Error("failed to serialize game state")

		return
	}

	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.persistFailed(err)

		return
	}

	if s.degraded {
		s.degraded = false
		s.log.Info("persistence recovered")
	}
}

func (s *Store) publishLocked(ctx context.Context, st *GameState) {
	if s.bus == nil {
		return
	}

	data, err := Marshal(st)
	if err != nil {
		return
	}

	err = s.bus.Publish(ctx, storage.Change{
		Key:      s.key,
		NewValue: string(data),
		Origin:   s.origin,
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to announce state change")
	}
}

func (s *Store) persistFailed(err error) {
	if s.degraded {
		s.log.WithError(err).Debug("persistence still unavailable")

		return
	}

	s.degraded = true
	s.log.WithError(err).Warn("unable to persist state, continuing in memory")
}
