package analytics

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// syncBuffer is a goroutine-safe report sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// --- Unit Tests: reporter lifecycle ---

func TestReporter_WritesReports(t *testing.T) {
	b := newTestBus(t)
	b.SendDirect("planning", "coding", bus.TaskCreated, nil)

	a := newTestAnalyzer(t, b, time.Now())
	out := &syncBuffer{}
	r := NewReporter(a, ReporterConfig{
		Interval: 10 * time.Millisecond,
		Window:   time.Hour,
		Out:      out,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for out.String() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if !strings.Contains(out.String(), "MESSAGE BUS ANALYTICS REPORT") {
		t.Errorf("reporter wrote nothing before the deadline")
	}
}

func TestReporter_StartTwice(t *testing.T) {
	b := newTestBus(t)
	a := newTestAnalyzer(t, b, time.Now())
	r := NewReporter(a, ReporterConfig{
		Interval: time.Hour,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := r.Start(); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer r.Stop()

	if err := r.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestReporter_StopIdempotent(t *testing.T) {
	b := newTestBus(t)
	a := newTestAnalyzer(t, b, time.Now())
	r := NewReporter(a, ReporterConfig{
		Interval: time.Hour,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	r.Stop() // never started

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Stop()
	r.Stop()

	if err := r.Start(); err != nil {
		t.Fatalf("restart after Stop() error = %v", err)
	}
	r.Stop()
}
