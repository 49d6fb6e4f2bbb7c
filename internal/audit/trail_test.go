package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memAuditStorage struct {
	mu      sync.Mutex
	events  []Event
	batches int
}

func (s *memAuditStorage) WriteBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	s.batches++
	return nil
}

func (s *memAuditStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestTrailDrainsOnStop(t *testing.T) {
	storage := &memAuditStorage{}
	trail := NewTrail(storage, zap.NewNop(), 500, 50, time.Hour) // flush только по размеру и при Stop
	trail.Start()

	const total = 237
	for i := 0; i < total; i++ {
		trail.Record(Event{
			ID:      fmt.Sprintf("evt-%d", i),
			ActorID: "alice",
			Action:  ActionCreateRequest,
		})
	}
	trail.Stop()

	if got := storage.total(); got != total {
		t.Fatalf("persisted events = %d, want %d", got, total)
	}
}

func TestTrailBatchesBySize(t *testing.T) {
	storage := &memAuditStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 10, time.Hour)
	trail.Start()

	for i := 0; i < 30; i++ {
		trail.Record(Event{ID: fmt.Sprintf("evt-%d", i), Action: ActionSubmitDecision})
	}
	trail.Stop()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.events) != 30 {
		t.Fatalf("persisted events = %d, want 30", len(storage.events))
	}
	// 30 событий при размере пачки 10: не меньше трех пакетных записей
	if storage.batches < 3 {
		t.Errorf("batches = %d, want >= 3", storage.batches)
	}
}

func TestTrailStampsTimestamp(t *testing.T) {
	storage := &memAuditStorage{}
	trail := NewTrail(storage, zap.NewNop(), 10, 10, time.Hour)
	trail.Start()

	trail.Record(Event{ID: "evt-1", Action: ActionCancelRequest})
	trail.Stop()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.events) != 1 {
		t.Fatalf("persisted events = %d, want 1", len(storage.events))
	}
	if storage.events[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped on record")
	}
}

func TestTrailDropsAfterStop(t *testing.T) {
	storage := &memAuditStorage{}
	trail := NewTrail(storage, zap.NewNop(), 10, 10, time.Hour)
	trail.Start()
	trail.Stop()

	// Не должно паниковать и не должно ничего записать
	trail.Record(Event{ID: "late", Action: ActionSubmitDecision})

	if got := storage.total(); got != 0 {
		t.Fatalf("persisted events = %d, want 0 after stop", got)
	}
}
