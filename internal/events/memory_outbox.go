package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryOutbox is an in-process Outbox used when no database-backed outbox is
// wired in. Events survive until published, not across restarts.
type MemoryOutbox struct {
	mu        sync.Mutex
	events    []Event
	published map[uuid.UUID]bool
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{published: make(map[uuid.UUID]bool)}
}

func (o *MemoryOutbox) Record(_ context.Context, event Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *MemoryOutbox) Unpublished(_ context.Context, limit int) ([]Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := make([]Event, 0, limit)
	for _, e := range o.events {
		if o.published[e.ID] {
			continue
		}
		result = append(result, e)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[id] = true
	return nil
}

// All returns every recorded event, published or not. Test helper.
func (o *MemoryOutbox) All() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, len(o.events))
	copy(out, o.events)
	return out
}
