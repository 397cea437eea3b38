// Package events turns committed reconciliation outcomes into contact
// lifecycle events.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"contactsvc/internal/contact/models"
	"contactsvc/pkg/requestcontext"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = "1.0"

type Type string

const (
	// TypeCreated: a new identity group was started.
	TypeCreated Type = "contact.created"
	// TypeLinked: a secondary contact joined an existing group.
	TypeLinked Type = "contact.linked"
	// TypeMerged: one or more groups were folded into the oldest one.
	TypeMerged Type = "contact.merged"
)

// Event describes one change to an identity group.
type Event struct {
	ID            string    `json:"event_id"`
	Type          Type      `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	PrimaryID     int64     `json:"primary_contact_id"`
	ContactID     int64     `json:"contact_id,omitempty"`
	Demoted       []int64   `json:"demoted_contact_ids,omitempty"`
	Relinked      []int64   `json:"relinked_contact_ids,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FromOutcome lists the events an outcome produces, merge before link.
func FromOutcome(ctx context.Context, o models.Outcome) []Event {
	base := Event{
		SchemaVersion: SchemaVersion,
		PrimaryID:     o.PrimaryID,
		RequestID:     requestcontext.RequestID(ctx),
		OccurredAt:    requestcontext.Now(ctx).UTC(),
	}
	newEvent := func(t Type) Event {
		e := base
		e.ID = uuid.NewString()
		e.Type = t
		return e
	}

	var out []Event
	switch o.Kind {
	case models.OutcomeCreated:
		e := newEvent(TypeCreated)
		e.ContactID = o.CreatedID
		out = append(out, e)
	case models.OutcomeExtended:
		e := newEvent(TypeLinked)
		e.ContactID = o.CreatedID
		out = append(out, e)
	case models.OutcomeMerged:
		e := newEvent(TypeMerged)
		e.Demoted = o.Demoted
		e.Relinked = o.Relinked
		out = append(out, e)
		if o.CreatedID != 0 {
			linked := newEvent(TypeLinked)
			linked.ContactID = o.CreatedID
			out = append(out, linked)
		}
	}
	return out
}

// Noop discards every outcome.
type Noop struct{}

func (Noop) Publish(context.Context, models.Outcome) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, o models.Outcome) error {
	evs := FromOutcome(ctx, o)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	events := r.Events()
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
