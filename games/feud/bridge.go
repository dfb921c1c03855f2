package feud

import (
	"context"
	"fmt"

	"github.com/Seednode/chungsuc/storage"
	"github.com/sirupsen/logrus"
)

// Bridge keeps a store in step with writes made by other instances. The
// latest whole-state snapshot wins; concurrent edits are not merged.
type Bridge struct {
	store *Store
	bus   storage.Bus
	log   logrus.FieldLogger
}

func NewBridge(store *Store, bus storage.Bus) (*Bridge, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if bus == nil {
		return nil, ErrNilBus
	}

	return &Bridge{
		store: store,
		bus:   bus,
		log:   store.log.WithField("component", "bridge"),
	}, nil
}

// Run applies changes until ctx is done or the subscription ends.
func (b *Bridge) Run(ctx context.Context) error {
	changes, err := b.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to state changes: %w", err)
	}

	b.log.Info("listening for state changes from other instances")

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}

			b.Apply(change)
		}
	}
}

// Apply handles one change and reports whether the store took it.
func (b *Bridge) Apply(change storage.Change) bool {
	if change.Key != b.store.Key() || change.NewValue == "" {
		return false
	}

	// Our own write, already applied
	if change.Origin == b.store.Origin() {
		return false
	}

	st, err := Parse([]byte(change.NewValue))
	if err != nil {
		b.log.WithError(err).WithField("from", change.Origin).Error("failed to sync game state from other instance")
		b.store.metrics.SyncRejected()

		return false
	}

	b.store.replace(st)
	b.store.metrics.SyncApplied()

	return true
}
