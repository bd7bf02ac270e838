package analytics

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Reporter errors.
var (
	ErrAlreadyRunning = errors.New("reporter already running")
)

// ReporterConfig controls the periodic reporting loop.
type ReporterConfig struct {
	// Interval between report runs. Default: 1h
	Interval time.Duration

	// Window is the look-back each report covers. Default: 24h
	Window time.Duration

	// Out receives the full rendered report each run. Nil skips the
	// write; the summary log line is emitted either way.
	Out io.Writer

	// Logger for run summaries and write failures.
	// Default: the analyzer's logger.
	Logger *slog.Logger
}

// Reporter periodically renders an analytics report and writes it out.
type Reporter struct {
	analyzer *Analyzer
	cfg      ReporterConfig
	logger   *slog.Logger

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReporter creates a reporter over the given analyzer. Zero config
// fields take their defaults.
func NewReporter(a *Analyzer, cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = a.logger
	}
	return &Reporter{analyzer: a, cfg: cfg, logger: logger}
}

// Start launches the reporting loop. Returns ErrAlreadyRunning if the
// reporter is already started.
func (r *Reporter) Start() error {
	if r.running.Swap(true) {
		return ErrAlreadyRunning
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run()
	return nil
}

// Stop terminates the loop and waits for it to exit. Safe to call more
// than once.
func (r *Reporter) Stop() {
	if !r.running.Swap(false) {
		return
	}
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report renders one report, writes it, and logs a summary line.
func (r *Reporter) report() {
	freq := r.analyzer.FrequencyAnalysis(r.cfg.Window)

	if r.cfg.Out != nil {
		rendered := r.analyzer.GenerateReport(r.cfg.Window)
		if _, err := io.WriteString(r.cfg.Out, rendered); err != nil {
			r.logger.Warn("analytics report write failed", "error", err)
		}
	}

	r.logger.Info("analytics report generated",
		"window", r.cfg.Window.String(),
		"totalMessages", freq.TotalMessages,
		"messagesPerHour", freq.MessagesPerHour)
}
