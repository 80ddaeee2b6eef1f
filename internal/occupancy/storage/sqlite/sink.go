package sqlite

import (
	"github.com/banshee-data/occupancy.report/internal/occupancy/pipeline"
)

// StoreSink writes engine events into an EventStore as they are produced.
// It implements pipeline.EventSink; each frame's events land in one
// transaction.
type StoreSink struct {
	store *EventStore
	runID string
}

// NewStoreSink binds a sink to an open run.
func NewStoreSink(store *EventStore, runID string) *StoreSink {
	return &StoreSink{store: store, runID: runID}
}

// Emit persists one frame's events.
func (s *StoreSink) Emit(events []pipeline.Event) error {
	return s.store.InsertEvents(s.runID, events)
}
