package persist

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/justmebob123/autonomy-sub001/bus"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "bus.db")})
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Unit Tests: sqlite archive ---

func TestSQLite_PersistAndCount(t *testing.T) {
	s := newTestSQLite(t)

	for _, title := range []string{"parse config", "write tests", "review diff"} {
		msg := bus.NewMessage("planning", "coding", bus.TaskCreated,
			map[string]any{"title": title})
		if err := s.Persist(msg); err != nil {
			t.Fatalf("Persist(%q) error = %v", title, err)
		}
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestSQLite_RecentNewestFirst(t *testing.T) {
	s := newTestSQLite(t)
	now := time.Now()

	old := bus.NewMessage("planning", "coding", bus.TaskCreated, nil,
		bus.WithTimestamp(now.Add(-time.Hour)))
	mid := bus.NewMessage("planning", "coding", bus.TaskStarted, nil,
		bus.WithTimestamp(now.Add(-time.Minute)))
	fresh := bus.NewMessage("coding", "qa", bus.TaskCompleted, nil,
		bus.WithTimestamp(now))
	for _, msg := range []*bus.Message{old, mid, fresh} {
		if err := s.Persist(msg); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}

	msgs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != fresh.ID || msgs[1].ID != mid.ID {
		t.Errorf("Recent() order = [%s %s], want newest first", msgs[0].ID, msgs[1].ID)
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	s := newTestSQLite(t)

	sent := bus.NewMessage("qa", "planning", bus.IssueFound,
		map[string]any{"file": "parser.go", "line": float64(42)},
		bus.WithPriority(bus.PriorityCritical),
		bus.WithObjectiveID("obj-7"),
		bus.WithTags("qa", "parser"))
	if err := s.Persist(sent); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	got, err := s.Get(sent.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Type != bus.IssueFound || got.Priority != bus.PriorityCritical {
		t.Errorf("got type/priority %v/%v, want issue_found/CRITICAL", got.Type, got.Priority)
	}
	if got.ObjectiveID != "obj-7" {
		t.Errorf("ObjectiveID = %q, want obj-7", got.ObjectiveID)
	}
	if got.Payload["file"] != "parser.go" || got.Payload["line"] != float64(42) {
		t.Errorf("payload = %v, want file/line preserved", got.Payload)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "qa" {
		t.Errorf("tags = %v, want [qa parser]", got.Tags)
	}
	if !got.Timestamp.Equal(sent.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, sent.Timestamp)
	}
}

func TestSQLite_GetUnknown(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_FullTextSearch(t *testing.T) {
	s := newTestSQLite(t)

	hit := bus.NewMessage("planning", "coding", bus.TaskCreated,
		map[string]any{"title": "parse the config loader"})
	miss := bus.NewMessage("planning", "coding", bus.TaskCreated,
		map[string]any{"title": "render the report"})
	for _, msg := range []*bus.Message{hit, miss} {
		if err := s.Persist(msg); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}

	msgs, err := s.Search("config", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d hits, want 1", len(msgs))
	}
	if msgs[0].ID != hit.ID {
		t.Errorf("hit ID = %q, want %q", msgs[0].ID, hit.ID)
	}

	bySender, err := s.Search("planning", 10)
	if err != nil {
		t.Fatalf("Search(sender) error = %v", err)
	}
	if len(bySender) != 2 {
		t.Errorf("sender search got %d hits, want 2", len(bySender))
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.db")

	s, err := NewSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	msg := bus.NewMessage("planning", "coding", bus.TaskCreated, nil)
	if err := s.Persist(msg); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	n, err := reopened.Count()
	if err != nil {
		t.Fatalf("Count() after reopen error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() after reopen = %d, want 1", n)
	}
}

func TestSQLite_Closed(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	if err := s.Persist(bus.NewMessage("a", "b", bus.SystemInfo, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Persist after Close error = %v, want ErrClosed", err)
	}
	if _, err := s.Recent(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Recent after Close error = %v, want ErrClosed", err)
	}
	if _, err := s.Count(); !errors.Is(err, ErrClosed) {
		t.Errorf("Count after Close error = %v, want ErrClosed", err)
	}
}
