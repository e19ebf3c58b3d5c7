package neograph

import (
	"context"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Event names a point of the write path observers are notified at.
type Event string

const (
	EventCreating Event = "creating"
	EventSaving   Event = "saving"
	EventCreated  Event = "created"
	EventSaved    Event = "saved"
)

// vetoable events abort the write when an observer fails.
func (e Event) vetoable() bool {
	return e == EventCreating || e == EventSaving
}

// Observer is notified of entity writes. Returning an error from a creating or
// saving notification aborts the write.
type Observer interface {
	Observe(ctx context.Context, event Event, entity *model.Entity) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event, entity *model.Entity) error

func (f ObserverFunc) Observe(ctx context.Context, event Event, entity *model.Entity) error {
	return f(ctx, event, entity)
}

// observers is the ordered list of observers owned by a Manager.
type observers []Observer

// fire notifies every observer in order and stops at the first error. Errors of
// vetoable events are wrapped in an AbortedError.
func (o observers) fire(ctx context.Context, event Event, entity *model.Entity) error {
	for _, obs := range o {
		if err := obs.Observe(ctx, event, entity); err != nil {
			if event.vetoable() {
				return &AbortedError{Event: event, Schema: entity.Schema().Name(), Err: err}
			}
			return err
		}
	}
	return nil
}
