// Package events carries change notifications from the catalog to
// subscribers. Sinks are best effort: they run after the change committed and
// cannot fail it.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Entity string

const (
	EntityOperation  Entity = "operation"
	EntityLabel      Entity = "label"
	EntityItem       Entity = "item"
	EntityAccount    Entity = "account"
	EntityRepository Entity = "repository"
)

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Event struct {
	ID         string    `json:"id"`
	Entity     Entity    `json:"entity"`
	Action     Action    `json:"action"`
	RepoID     int64     `json:"repo_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(entity Entity, action Action, repoID int64, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Entity:     entity,
		Action:     action,
		RepoID:     repoID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Name is the event name used on the wire, e.g. "operation.insert".
func (e Event) Name() string { return string(e.Entity) + "." + string(e.Action) }

type Sink interface {
	Emit(ctx context.Context, e Event)
}

type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Multi fans each event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// LogSink writes events to a structured logger at Info level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "catalog event",
		"event_id", e.ID,
		"event", e.Name(),
		"repo_id", e.RepoID,
	)
}

// Filter forwards only events whose name is listed. An empty list forwards
// everything.
func Filter(sink Sink, names ...string) Sink {
	if len(names) == 0 {
		return sink
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return SinkFunc(func(ctx context.Context, e Event) {
		if allowed[e.Name()] {
			sink.Emit(ctx, e)
		}
	})
}
