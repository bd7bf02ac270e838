package bus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrNilMessage = errors.New("nil message")
)

// Handler is invoked for each message of a registered type delivered to a
// phase's queue. Handlers run outside the bus lock, so they may call back
// into the bus; handlers for different deliveries are not mutually
// exclusive. A panicking handler is logged and never aborts delivery to
// other recipients.
type Handler func(*Message)

// Persister is the optional durability hook. It is invoked once per
// published message, outside the bus lock. A failure is logged and never
// blocks or rolls back the in-memory publish.
type Persister interface {
	Persist(*Message) error
}

// pendingEntry holds a response awaiting pickup by a blocked
// RequestResponse caller.
type pendingEntry struct {
	msg      *Message
	storedAt time.Time
}

// handlerCall is one deferred handler invocation, collected under the
// lock during routing and run after release.
type handlerCall struct {
	phase   string
	handler Handler
	msg     *Message
}

// Bus is the in-process broker. It owns all delivery state: the
// subscription table, per-phase queues, history, pending responses, and
// statistics. One Bus is constructed per process and shared by reference.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	idGen func() string
	now   func() time.Time

	mu            sync.Mutex
	subscriptions map[MessageType]map[string]struct{}
	queues        map[string][]*Message
	transient     []*Message // shared recent-delivery window, size-capped
	history       []*Message
	pending       map[string]pendingEntry
	handlers      map[string]map[MessageType][]Handler
	stats         counters
	started       time.Time
}

// counters are the running statistics, guarded by the bus mutex.
type counters struct {
	published int64
	delivered int64
	broadcast int64
	direct    int64

	byType     map[MessageType]int64
	byPriority map[Priority]int64
}

// Option customizes a Bus at construction time.
type Option func(*Bus)

// WithIDGenerator replaces the message ID generator used by the
// convenience constructors. Useful for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(b *Bus) { b.idGen = gen }
}

// WithNow replaces the bus clock. Useful for retention tests and replay.
func WithNow(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a bus with the given configuration. Zero config fields take
// their defaults.
func New(cfg Config, opts ...Option) *Bus {
	cfg = cfg.withDefaults()
	b := &Bus{
		cfg:           cfg,
		logger:        cfg.Logger,
		idGen:         uuid.NewString,
		now:           time.Now,
		subscriptions: make(map[MessageType]map[string]struct{}),
		queues:        make(map[string][]*Message),
		pending:       make(map[string]pendingEntry),
		handlers:      make(map[string]map[MessageType][]Handler),
		stats: counters{
			byType:     make(map[MessageType]int64),
			byPriority: make(map[Priority]int64),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.started = b.now()
	return b
}

// newMessage builds a message through the bus's ID generator and clock.
// Caller options run afterwards and may override both.
func (b *Bus) newMessage(sender, recipient string, t MessageType, payload map[string]any, opts []MessageOption) *Message {
	base := []MessageOption{WithID(b.idGen()), WithTimestamp(b.now())}
	return NewMessage(sender, recipient, t, payload, append(base, opts...)...)
}

// Publish records the message in history and routes it: a broadcast
// recipient reaches every phase currently subscribed to the message type;
// any other recipient receives it unconditionally, regardless of
// subscription state. Unknown recipients are not an error; the message is
// queued and may never be read. Retention cleanup runs before Publish
// returns.
func (b *Bus) Publish(msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	b.publish(msg)
	return nil
}

func (b *Bus) publish(msg *Message) {
	b.mu.Lock()
	b.history = append(b.history, msg)
	b.transient = append(b.transient, msg)
	b.stats.published++
	b.stats.byType[msg.Type]++
	b.stats.byPriority[msg.Priority]++

	var calls []handlerCall
	if msg.IsBroadcast() {
		b.stats.broadcast++
		for phase := range b.subscriptions[msg.Type] {
			calls = append(calls, b.deliverLocked(phase, msg)...)
		}
	} else {
		b.stats.direct++
		calls = append(calls, b.deliverLocked(msg.Recipient, msg)...)
	}
	b.cleanupLocked()
	b.mu.Unlock()

	b.logger.Debug("message published",
		"id", msg.ID,
		"type", msg.Type.String(),
		"sender", msg.Sender,
		"recipient", msg.Recipient,
		"priority", msg.Priority.String())

	b.runHandlers(calls)
	b.persistMessage(msg)
}

// deliverLocked appends the message to a phase queue and collects the
// handler invocations due for it. Caller holds the lock.
func (b *Bus) deliverLocked(phase string, msg *Message) []handlerCall {
	b.queues[phase] = append(b.queues[phase], msg)
	b.stats.delivered++

	registered := b.handlers[phase][msg.Type]
	if len(registered) == 0 {
		return nil
	}
	calls := make([]handlerCall, 0, len(registered))
	for _, h := range registered {
		calls = append(calls, handlerCall{phase: phase, handler: h, msg: msg})
	}
	return calls
}

// runHandlers invokes collected handlers after the lock is released.
// Each handler receives its own copy of the message.
func (b *Bus) runHandlers(calls []handlerCall) {
	for _, call := range calls {
		b.invokeHandler(call)
	}
}

func (b *Bus) invokeHandler(call handlerCall) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				"phase", call.phase,
				"type", call.msg.Type.String(),
				"id", call.msg.ID,
				"panic", r)
		}
	}()
	call.handler(call.msg.Clone())
}

// persistMessage hands the message to the durability hook, if any.
func (b *Bus) persistMessage(msg *Message) {
	if b.cfg.Persister == nil {
		return
	}
	if err := b.cfg.Persister.Persist(msg.Clone()); err != nil {
		b.logger.Warn("persist hook failed", "id", msg.ID, "error", err)
	}
}

// Subscribe adds the phase to the subscriber set of each given type.
// Subscribing to no types changes nothing.
func (b *Bus) Subscribe(phase string, types ...MessageType) {
	if len(types) == 0 {
		return
	}
	b.mu.Lock()
	for _, t := range types {
		set := b.subscriptions[t]
		if set == nil {
			set = make(map[string]struct{})
			b.subscriptions[t] = set
		}
		set[phase] = struct{}{}
	}
	b.mu.Unlock()

	b.logger.Debug("phase subscribed", "phase", phase, "types", len(types))
}

// Unsubscribe removes the phase from the subscriber sets of the given
// types, or from every type when none are given.
func (b *Bus) Unsubscribe(phase string, types ...MessageType) {
	b.mu.Lock()
	if len(types) == 0 {
		for t, set := range b.subscriptions {
			delete(set, phase)
			if len(set) == 0 {
				delete(b.subscriptions, t)
			}
		}
	} else {
		for _, t := range types {
			set := b.subscriptions[t]
			delete(set, phase)
			if len(set) == 0 {
				delete(b.subscriptions, t)
			}
		}
	}
	b.mu.Unlock()

	b.logger.Debug("phase unsubscribed", "phase", phase, "types", len(types))
}

// QueueFilter narrows GetMessages results. The zero value matches
// everything in the phase's queue.
type QueueFilter struct {
	// Since keeps only messages strictly newer than this time.
	Since time.Time

	// Types keeps only messages of the listed types.
	Types []MessageType

	// Priority keeps only messages of exactly this priority.
	Priority *Priority

	// Limit truncates the sorted result. 0 = no limit.
	Limit int
}

// GetMessages returns the phase's queued messages matching the filter,
// sorted by (priority value, timestamp) ascending: CRITICAL first, ties
// broken by earliest first. Messages are not removed; returned values are
// copies.
func (b *Bus) GetMessages(phase string, f QueueFilter) []*Message {
	b.mu.Lock()
	queue := b.queues[phase]
	matched := make([]*Message, 0, len(queue))
	for _, msg := range queue {
		if !f.Since.IsZero() && !msg.Timestamp.After(f.Since) {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, msg.Type) {
			continue
		}
		if f.Priority != nil && msg.Priority != *f.Priority {
			continue
		}
		matched = append(matched, msg)
	}
	b.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return cloneAll(matched)
}

// ClearMessages removes the phase's queued messages, or only those whose
// ID is listed. Returns the number removed.
func (b *Bus) ClearMessages(phase string, ids ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue, ok := b.queues[phase]
	if !ok || len(queue) == 0 {
		return 0
	}
	if len(ids) == 0 {
		b.queues[phase] = nil
		return len(queue)
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]*Message, 0, len(queue))
	removed := 0
	for _, msg := range queue {
		if _, found := drop[msg.ID]; found {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	b.queues[phase] = kept
	return removed
}

// SendDirect constructs and publishes a message addressed to one phase.
// Direct addressing bypasses subscriptions.
func (b *Bus) SendDirect(sender, recipient string, t MessageType, payload map[string]any, opts ...MessageOption) *Message {
	msg := b.newMessage(sender, recipient, t, payload, opts)
	b.publish(msg)
	return msg
}

// Broadcast constructs and publishes a message to every phase subscribed
// to the type.
func (b *Bus) Broadcast(sender string, t MessageType, payload map[string]any, opts ...MessageOption) *Message {
	msg := b.newMessage(sender, BroadcastRecipient, t, payload, opts)
	b.publish(msg)
	return msg
}

// RequestResponse publishes a message expecting a response and blocks
// until a matching response arrives, the timeout elapses, or the context
// is cancelled. Returns nil on timeout or cancellation. The bus lock is
// never held while waiting. This is the only blocking bus operation.
func (b *Bus) RequestResponse(ctx context.Context, sender, recipient string, t MessageType, payload map[string]any, timeout time.Duration, opts ...MessageOption) *Message {
	if timeout <= 0 {
		timeout = b.cfg.RequestTimeout
	}
	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	base := []MessageOption{WithRequiresResponse(seconds)}
	msg := b.newMessage(sender, recipient, t, payload, append(base, opts...))
	b.publish(msg)

	// The wait is bounded by wall time even under an injected clock.
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		entry, found := b.pending[msg.ID]
		if found {
			delete(b.pending, msg.ID)
		}
		b.mu.Unlock()

		if found {
			return entry.msg.Clone()
		}
		if time.Now().After(deadline) {
			b.logger.Debug("request timed out", "id", msg.ID, "recipient", recipient)
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

// SendResponse answers a request: it builds a message of type
// phase_response addressed to the original sender, carrying the original's
// priority and linked through InResponseTo. The response is stored for the
// waiting requester before it is published, so it also lands in the
// requester's queue. A nil original yields nil.
func (b *Bus) SendResponse(original *Message, sender string, payload map[string]any) *Message {
	if original == nil {
		return nil
	}
	resp := b.newMessage(sender, original.Sender, PhaseResponse, payload, []MessageOption{
		WithPriority(original.Priority),
		WithInResponseTo(original.ID),
	})

	b.mu.Lock()
	b.pending[original.ID] = pendingEntry{msg: resp, storedAt: b.now()}
	b.mu.Unlock()

	b.publish(resp)
	return resp
}

// RegisterHandler registers a callback for messages of the given type
// delivered to the given phase. Multiple handlers may be registered for
// the same (phase, type) pair; each delivery invokes all of them.
func (b *Bus) RegisterHandler(phase string, t MessageType, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	byType := b.handlers[phase]
	if byType == nil {
		byType = make(map[MessageType][]Handler)
		b.handlers[phase] = byType
	}
	byType[t] = append(byType[t], h)
}

// SearchFilter narrows SearchMessages results. The zero value matches the
// entire history.
type SearchFilter struct {
	Sender    string
	Recipient string
	Types     []MessageType

	// Since/Until bound the timestamp inclusively on both ends.
	Since time.Time
	Until time.Time

	ObjectiveID string
	TaskID      string
	IssueID     string

	// Limit truncates the sorted result. 0 = no limit.
	Limit int
}

// SearchMessages queries the full history (not per-phase queues) with
// AND-combined filters, sorted newest-first. Returned values are copies.
func (b *Bus) SearchMessages(f SearchFilter) []*Message {
	b.mu.Lock()
	matched := make([]*Message, 0, len(b.history))
	for _, msg := range b.history {
		if f.Sender != "" && msg.Sender != f.Sender {
			continue
		}
		if f.Recipient != "" && msg.Recipient != f.Recipient {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, msg.Type) {
			continue
		}
		if !f.Since.IsZero() && msg.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && msg.Timestamp.After(f.Until) {
			continue
		}
		if f.ObjectiveID != "" && msg.ObjectiveID != f.ObjectiveID {
			continue
		}
		if f.TaskID != "" && msg.TaskID != f.TaskID {
			continue
		}
		if f.IssueID != "" && msg.IssueID != f.IssueID {
			continue
		}
		matched = append(matched, msg)
	}
	b.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return cloneAll(matched)
}

// GetStatistics returns a snapshot of the running counters.
func (b *Bus) GetStatistics() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalPublished: b.stats.published,
		TotalDelivered: b.stats.delivered,
		TotalBroadcast: b.stats.broadcast,
		TotalDirect:    b.stats.direct,
		ByType:         make(map[string]int64, len(b.stats.byType)),
		ByPriority:     make(map[string]int64, len(b.stats.byPriority)),
		QueueSizes:     make(map[string]int, len(b.queues)),
		HistorySize:    len(b.history),
		Uptime:         b.now().Sub(b.started),
	}
	for t, n := range b.stats.byType {
		s.ByType[t.String()] = n
	}
	for p, n := range b.stats.byPriority {
		s.ByPriority[p.String()] = n
	}
	for phase, queue := range b.queues {
		s.QueueSizes[phase] = len(queue)
	}
	for _, set := range b.subscriptions {
		s.ActiveSubscriptions += len(set)
	}
	return s
}

// cleanupLocked enforces retention: history TTL and size cap, transient
// queue size cap, phase queue TTL, and pending response expiry. Caller
// holds the lock. Runs at least once per publish.
func (b *Bus) cleanupLocked() {
	now := b.now()
	cutoff := now.Add(-b.cfg.HistoryTTL)

	b.history = pruneExpired(b.history, cutoff)
	if over := len(b.history) - b.cfg.MaxHistory; over > 0 {
		b.history = b.history[over:]
	}

	if over := len(b.transient) - b.cfg.MaxQueue; over > 0 {
		b.transient = b.transient[over:]
	}

	for phase, queue := range b.queues {
		b.queues[phase] = pruneExpired(queue, cutoff)
	}

	for id, entry := range b.pending {
		if now.Sub(entry.storedAt) > b.cfg.PendingTTL {
			delete(b.pending, id)
		}
	}
}

// pruneExpired drops messages at or before the cutoff. The input slice is
// returned untouched when nothing has expired.
func pruneExpired(msgs []*Message, cutoff time.Time) []*Message {
	expired := false
	for _, msg := range msgs {
		if !msg.Timestamp.After(cutoff) {
			expired = true
			break
		}
	}
	if !expired {
		return msgs
	}
	kept := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Timestamp.After(cutoff) {
			kept = append(kept, msg)
		}
	}
	return kept
}

func cloneAll(msgs []*Message) []*Message {
	out := make([]*Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Clone()
	}
	return out
}
