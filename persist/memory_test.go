package persist

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/justmebob123/autonomy-sub001/bus"
)

func testMessage(t *testing.T, payload map[string]any) *bus.Message {
	t.Helper()
	return bus.NewMessage("planning", "coding", bus.TaskCreated, payload)
}

// --- Unit Tests: memory archive ---

func TestMemory_PersistAndGet(t *testing.T) {
	m := NewMemory()

	first := testMessage(t, map[string]any{"title": "parse config"})
	second := testMessage(t, map[string]any{"title": "write tests"})
	if err := m.Persist(first); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := m.Persist(second); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	msgs := m.Messages()
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Errorf("Messages() out of arrival order")
	}

	got, err := m.Get(first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Payload["title"] != "parse config" {
		t.Errorf("payload title = %v, want parse config", got.Payload["title"])
	}
}

func TestMemory_GetUnknown(t *testing.T) {
	m := NewMemory()

	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemory_StoresCopies(t *testing.T) {
	m := NewMemory()
	msg := testMessage(t, map[string]any{"title": "original"})
	if err := m.Persist(msg); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	// Mutating the caller's message must not reach the archive.
	msg.Payload["title"] = "mutated"

	got, err := m.Get(msg.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Payload["title"] != "original" {
		t.Errorf("archived payload = %v, want original", got.Payload["title"])
	}

	// Mutating a read result must not reach the archive either.
	got.Payload["title"] = "mutated again"
	again, _ := m.Get(msg.ID)
	if again.Payload["title"] != "original" {
		t.Errorf("archive leaked a live reference")
	}
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := m.Persist(testMessage(t, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Persist after Close error = %v, want ErrClosed", err)
	}
	if _, err := m.Get("any"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close error = %v, want ErrClosed", err)
	}
}

func TestMemory_NilMessage(t *testing.T) {
	m := NewMemory()
	if err := m.Persist(nil); !errors.Is(err, bus.ErrNilMessage) {
		t.Errorf("Persist(nil) error = %v, want ErrNilMessage", err)
	}
}

// --- Unit Tests: bus wiring ---

func TestMemory_ReceivesPublishes(t *testing.T) {
	archive := NewMemory()
	cfg := bus.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Persister = archive
	b := bus.New(cfg)

	sent := b.SendDirect("planning", "coding", bus.TaskCreated,
		map[string]any{"title": "wire the archive"})

	if archive.Len() != 1 {
		t.Fatalf("archive Len() = %d, want 1", archive.Len())
	}
	got, err := archive.Get(sent.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Type != bus.TaskCreated {
		t.Errorf("archived type = %v, want task_created", got.Type)
	}
}

// --- Unit Tests: multi fan-out ---

type failPersister struct{ err error }

func (p failPersister) Persist(*bus.Message) error { return p.err }

func TestMulti_FanOutContinuesPastFailure(t *testing.T) {
	first := NewMemory()
	second := NewMemory()
	boom := errors.New("disk full")

	m := Multi(first, failPersister{err: boom}, second)

	err := m.Persist(testMessage(t, nil))
	if !errors.Is(err, boom) {
		t.Errorf("Persist() error = %v, want joined disk full", err)
	}
	if first.Len() != 1 || second.Len() != 1 {
		t.Errorf("archives saw %d/%d messages, want 1/1: failure must not stop fan-out",
			first.Len(), second.Len())
	}
}

func TestMulti_AllSucceed(t *testing.T) {
	first := NewMemory()
	second := NewMemory()

	if err := Multi(first, second).Persist(testMessage(t, nil)); err != nil {
		t.Errorf("Persist() error = %v, want nil", err)
	}
}
