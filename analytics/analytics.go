package analytics

import (
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// MessageSource supplies the history snapshot the analyzer works on.
// *bus.Bus satisfies it; SearchMessages must return copies, newest-first.
type MessageSource interface {
	SearchMessages(f bus.SearchFilter) []*bus.Message
}

// Thresholds bound the signals DetectPatterns flags.
type Thresholds struct {
	// RepeatedErrorMin is the occurrence count at which a (sender, type)
	// error group is flagged. Default: 3
	RepeatedErrorMin int

	// BurstWindow is the bucket size for burst detection. Default: 5m
	BurstWindow time.Duration

	// BurstMin is the bucket count at which a burst is flagged. Bursts
	// are only evaluated when the whole window holds at least this many
	// messages. Default: 11
	BurstMin int

	// SlowResponse is the latency above which a request/response pair is
	// flagged. Default: 30s
	SlowResponse time.Duration

	// SequenceLength is the length of the type runs counted by sequence
	// detection. Default: 3
	SequenceLength int

	// SequenceMin is the occurrence count at which a run is flagged.
	// Default: 2
	SequenceMin int

	// TopSequences caps the number of flagged sequences, most frequent
	// first. Default: 5
	TopSequences int
}

// DefaultThresholds returns the standard detection bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RepeatedErrorMin: 3,
		BurstWindow:      5 * time.Minute,
		BurstMin:         11,
		SlowResponse:     30 * time.Second,
		SequenceLength:   3,
		SequenceMin:      2,
		TopSequences:     5,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.RepeatedErrorMin <= 0 {
		t.RepeatedErrorMin = def.RepeatedErrorMin
	}
	if t.BurstWindow <= 0 {
		t.BurstWindow = def.BurstWindow
	}
	if t.BurstMin <= 0 {
		t.BurstMin = def.BurstMin
	}
	if t.SlowResponse <= 0 {
		t.SlowResponse = def.SlowResponse
	}
	if t.SequenceLength <= 0 {
		t.SequenceLength = def.SequenceLength
	}
	if t.SequenceMin <= 0 {
		t.SequenceMin = def.SequenceMin
	}
	if t.TopSequences <= 0 {
		t.TopSequences = def.TopSequences
	}
	return t
}

// Analyzer computes reports over a message source. It holds no message
// state of its own and is safe for concurrent use.
type Analyzer struct {
	src        MessageSource
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes an Analyzer at construction time.
type Option func(*Analyzer)

// WithThresholds replaces the default detection bounds.
func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) { a.thresholds = t.withDefaults() }
}

// WithLogger sets the logger used by the periodic reporter and for
// report-generation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithNow replaces the analyzer clock. Useful for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an analyzer over the given source.
func New(src MessageSource, opts ...Option) *Analyzer {
	a := &Analyzer{
		src:        src,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// window returns the messages inside the look-back window in chronological
// order. A zero window means the entire retained history.
func (a *Analyzer) window(window time.Duration) []*bus.Message {
	var f bus.SearchFilter
	if window > 0 {
		f.Since = a.now().Add(-window)
	}
	msgs := a.src.SearchMessages(f)
	slices.Reverse(msgs) // search results arrive newest-first
	return msgs
}

// FrequencyReport summarizes message volume over a window.
type FrequencyReport struct {
	TotalMessages   int
	MessagesPerHour float64

	// TimeSpanHours is the elapsed hours between the oldest and newest
	// message, floored at 1 when fewer than two messages are present.
	TimeSpanHours float64

	ByType     map[string]int
	BySender   map[string]int
	ByPriority map[string]int
}

// FrequencyAnalysis counts messages by type, sender, and priority over the
// window. An empty window yields a zero report with empty maps.
func (a *Analyzer) FrequencyAnalysis(window time.Duration) FrequencyReport {
	msgs := a.window(window)

	r := FrequencyReport{
		TotalMessages: len(msgs),
		ByType:        make(map[string]int),
		BySender:      make(map[string]int),
		ByPriority:    make(map[string]int),
	}
	if len(msgs) == 0 {
		return r
	}

	span := 1.0
	if len(msgs) > 1 {
		span = msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Hours()
	}
	r.TimeSpanHours = span
	r.MessagesPerHour = float64(len(msgs)) / math.Max(span, 1)

	for _, msg := range msgs {
		r.ByType[msg.Type.String()]++
		r.BySender[msg.Sender]++
		r.ByPriority[msg.Priority.String()]++
	}
	return r
}

// RepeatedError is one (sender, type) error group that crossed the
// repeated-error threshold.
type RepeatedError struct {
	Sender    string
	Type      bus.MessageType
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Burst is one bucket whose message count crossed the burst threshold.
type Burst struct {
	Start         time.Time
	Count         int
	RatePerMinute float64
}

// SlowResponse is one request/response pair slower than the threshold.
type SlowResponse struct {
	RequestID string
	Sender    string
	Recipient string
	Latency   time.Duration
}

// Sequence is one recurring run of message types.
type Sequence struct {
	Types []bus.MessageType
	Count int
}

// PatternReport carries the signals DetectPatterns found. Empty slices
// mean nothing crossed the corresponding threshold.
type PatternReport struct {
	RepeatedErrors  []RepeatedError
	Bursts          []Burst
	SlowResponses   []SlowResponse
	CommonSequences []Sequence
}

// DetectPatterns scans the window for repeated errors, bursts, slow
// responses, and recurring type sequences.
func (a *Analyzer) DetectPatterns(window time.Duration) PatternReport {
	msgs := a.window(window)
	var r PatternReport
	if len(msgs) == 0 {
		return r
	}

	r.RepeatedErrors = a.repeatedErrors(msgs)
	r.Bursts = a.bursts(msgs)
	r.SlowResponses = a.slowResponses(msgs)
	r.CommonSequences = a.commonSequences(msgs)
	return r
}

// repeatedErrors groups error-named types by (sender, type) and flags
// groups at or above the threshold. msgs are chronological.
func (a *Analyzer) repeatedErrors(msgs []*bus.Message) []RepeatedError {
	type key struct {
		sender string
		t      bus.MessageType
	}
	groups := make(map[key][]*bus.Message)
	for _, msg := range msgs {
		if !msg.Type.IsError() {
			continue
		}
		k := key{sender: msg.Sender, t: msg.Type}
		groups[k] = append(groups[k], msg)
	}

	var flagged []RepeatedError
	for k, group := range groups {
		if len(group) < a.thresholds.RepeatedErrorMin {
			continue
		}
		flagged = append(flagged, RepeatedError{
			Sender:    k.sender,
			Type:      k.t,
			Count:     len(group),
			FirstSeen: group[0].Timestamp,
			LastSeen:  group[len(group)-1].Timestamp,
		})
	}
	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Count != flagged[j].Count {
			return flagged[i].Count > flagged[j].Count
		}
		if flagged[i].Sender != flagged[j].Sender {
			return flagged[i].Sender < flagged[j].Sender
		}
		return flagged[i].Type < flagged[j].Type
	})
	return flagged
}

// bursts buckets the window by BurstWindow and flags full buckets. Burst
// detection only runs when the window itself holds at least BurstMin
// messages.
func (a *Analyzer) bursts(msgs []*bus.Message) []Burst {
	if len(msgs) < a.thresholds.BurstMin {
		return nil
	}
	buckets := make(map[time.Time]int)
	for _, msg := range msgs {
		buckets[msg.Timestamp.Truncate(a.thresholds.BurstWindow)]++
	}

	var flagged []Burst
	for start, count := range buckets {
		if count < a.thresholds.BurstMin {
			continue
		}
		flagged = append(flagged, Burst{
			Start:         start,
			Count:         count,
			RatePerMinute: float64(count) / a.thresholds.BurstWindow.Minutes(),
		})
	}
	sort.Slice(flagged, func(i, j int) bool {
		return flagged[i].Start.Before(flagged[j].Start)
	})
	return flagged
}

// slowResponses matches request/response pairs inside the window and
// flags pairs slower than the threshold. msgs are chronological, so the
// first match is the earliest response.
func (a *Analyzer) slowResponses(msgs []*bus.Message) []SlowResponse {
	var flagged []SlowResponse
	for _, req := range msgs {
		if !req.RequiresResponse {
			continue
		}
		resp := firstResponse(msgs, req.ID)
		if resp == nil {
			continue
		}
		latency := resp.Timestamp.Sub(req.Timestamp)
		if latency <= a.thresholds.SlowResponse {
			continue
		}
		flagged = append(flagged, SlowResponse{
			RequestID: req.ID,
			Sender:    req.Sender,
			Recipient: req.Recipient,
			Latency:   latency,
		})
	}
	return flagged
}

// commonSequences counts every length-SequenceLength run of types in
// chronological order and returns the most frequent recurring runs.
func (a *Analyzer) commonSequences(msgs []*bus.Message) []Sequence {
	n := a.thresholds.SequenceLength
	if len(msgs) < n {
		return nil
	}
	counts := make(map[string]int)
	for i := 0; i+n <= len(msgs); i++ {
		counts[sequenceKey(msgs[i:i+n])]++
	}

	var flagged []Sequence
	for key, count := range counts {
		if count < a.thresholds.SequenceMin {
			continue
		}
		parts := strings.Split(key, "\x00")
		types := make([]bus.MessageType, len(parts))
		for i, p := range parts {
			types[i] = bus.MessageType(p)
		}
		flagged = append(flagged, Sequence{Types: types, Count: count})
	}
	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Count != flagged[j].Count {
			return flagged[i].Count > flagged[j].Count
		}
		return lessTypes(flagged[i].Types, flagged[j].Types)
	})
	if len(flagged) > a.thresholds.TopSequences {
		flagged = flagged[:a.thresholds.TopSequences]
	}
	return flagged
}

func sequenceKey(msgs []*bus.Message) string {
	parts := make([]string, len(msgs))
	for i, msg := range msgs {
		parts[i] = msg.Type.String()
	}
	return strings.Join(parts, "\x00")
}

func lessTypes(a, b []bus.MessageType) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ResponseTimeStats aggregates matched request/response latencies.
type ResponseTimeStats struct {
	Count  int
	Mean   time.Duration
	Median time.Duration
	Min    time.Duration
	Max    time.Duration
	StdDev time.Duration
}

// PerformanceReport summarizes throughput and responsiveness over a
// window.
type PerformanceReport struct {
	TotalMessages int

	// ProcessingRate is messages per second across the elapsed time
	// between the oldest and newest message, floored at one second.
	// Zero when the window holds fewer than two messages.
	ProcessingRate float64

	CriticalCount int
	CriticalRatio float64

	ResponseTimes ResponseTimeStats

	UniqueTypes      int
	UniqueSenders    int
	UniqueRecipients int
}

// PerformanceMetrics computes throughput, criticality, and response-time
// statistics over the window.
func (a *Analyzer) PerformanceMetrics(window time.Duration) PerformanceReport {
	msgs := a.window(window)

	var r PerformanceReport
	r.TotalMessages = len(msgs)
	if len(msgs) == 0 {
		return r
	}

	types := make(map[bus.MessageType]struct{})
	senders := make(map[string]struct{})
	recipients := make(map[string]struct{})
	for _, msg := range msgs {
		types[msg.Type] = struct{}{}
		senders[msg.Sender] = struct{}{}
		recipients[msg.Recipient] = struct{}{}
		if msg.IsCritical() {
			r.CriticalCount++
		}
	}
	r.UniqueTypes = len(types)
	r.UniqueSenders = len(senders)
	r.UniqueRecipients = len(recipients)
	r.CriticalRatio = float64(r.CriticalCount) / float64(len(msgs))

	if len(msgs) > 1 {
		span := msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Seconds()
		r.ProcessingRate = float64(len(msgs)) / math.Max(span, 1)
	}

	r.ResponseTimes = responseStats(responseLatencies(msgs))
	return r
}

// responseLatencies matches each request in the window to its earliest
// response and returns the delays. msgs are chronological.
func responseLatencies(msgs []*bus.Message) []time.Duration {
	var delays []time.Duration
	for _, req := range msgs {
		if !req.RequiresResponse {
			continue
		}
		if resp := firstResponse(msgs, req.ID); resp != nil {
			delays = append(delays, resp.Timestamp.Sub(req.Timestamp))
		}
	}
	return delays
}

func firstResponse(msgs []*bus.Message, requestID string) *bus.Message {
	for _, msg := range msgs {
		if msg.InResponseTo == requestID {
			return msg
		}
	}
	return nil
}

func responseStats(delays []time.Duration) ResponseTimeStats {
	if len(delays) == 0 {
		return ResponseTimeStats{}
	}
	sorted := slices.Clone(delays)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean := sum / time.Duration(len(sorted))

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	var stdev time.Duration
	if len(sorted) > 1 {
		var variance float64
		for _, d := range sorted {
			diff := float64(d - mean)
			variance += diff * diff
		}
		variance /= float64(len(sorted) - 1)
		stdev = time.Duration(math.Sqrt(variance))
	}

	return ResponseTimeStats{
		Count:  len(sorted),
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		StdDev: stdev,
	}
}

// TrendRow is the volume/criticality/error/responsiveness profile of one
// look-back window.
type TrendRow struct {
	Window          time.Duration
	TotalMessages   int
	CriticalRatio   float64
	ErrorRate       float64
	AvgResponseTime time.Duration
}

// TrendAnalysis profiles each window independently, one row per window in
// the order given. Empty windows yield zero rows rather than being
// skipped.
func (a *Analyzer) TrendAnalysis(windows []time.Duration) []TrendRow {
	rows := make([]TrendRow, 0, len(windows))
	for _, window := range windows {
		msgs := a.window(window)
		row := TrendRow{Window: window, TotalMessages: len(msgs)}
		if len(msgs) > 0 {
			critical, errors := 0, 0
			for _, msg := range msgs {
				if msg.IsCritical() {
					critical++
				}
				if msg.Type.IsError() {
					errors++
				}
			}
			row.CriticalRatio = float64(critical) / float64(len(msgs))
			row.ErrorRate = float64(errors) / float64(len(msgs))
			if delays := responseLatencies(msgs); len(delays) > 0 {
				var sum time.Duration
				for _, d := range delays {
					sum += d
				}
				row.AvgResponseTime = sum / time.Duration(len(delays))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// MatrixReport counts direct phase-to-phase traffic across the full
// retained history.
type MatrixReport struct {
	// Matrix[sender][recipient] is the number of direct messages sent.
	Matrix map[string]map[string]int

	TotalDirectMessages int
}

// PhaseCommunicationMatrix counts sender-to-recipient traffic, excluding
// broadcasts and messages without a sender.
func (a *Analyzer) PhaseCommunicationMatrix() MatrixReport {
	msgs := a.src.SearchMessages(bus.SearchFilter{})

	r := MatrixReport{Matrix: make(map[string]map[string]int)}
	for _, msg := range msgs {
		if msg.Sender == "" || msg.Recipient == "" || msg.IsBroadcast() {
			continue
		}
		row := r.Matrix[msg.Sender]
		if row == nil {
			row = make(map[string]int)
			r.Matrix[msg.Sender] = row
		}
		row[msg.Recipient]++
		r.TotalDirectMessages++
	}
	return r
}

// ObjectiveReport summarizes the traffic linked to one objective.
type ObjectiveReport struct {
	Total         int
	ByType        map[string]int
	CriticalCount int
}

// ObjectiveMessageAnalysis groups the full retained history by objective
// ID. Messages without an objective link are ignored.
func (a *Analyzer) ObjectiveMessageAnalysis() map[string]ObjectiveReport {
	msgs := a.src.SearchMessages(bus.SearchFilter{})

	reports := make(map[string]ObjectiveReport)
	for _, msg := range msgs {
		if msg.ObjectiveID == "" {
			continue
		}
		r, ok := reports[msg.ObjectiveID]
		if !ok {
			r = ObjectiveReport{ByType: make(map[string]int)}
		}
		r.Total++
		r.ByType[msg.Type.String()]++
		if msg.IsCritical() {
			r.CriticalCount++
		}
		reports[msg.ObjectiveID] = r
	}
	return reports
}
