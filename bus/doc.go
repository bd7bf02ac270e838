// Package bus provides an in-process message bus for coordinating
// pipeline phases.
//
// # Overview
//
// A Bus is a publish/subscribe and direct-messaging broker. Phases are
// opaque string names; each phase has a message queue on the bus and may
// subscribe to message types, register handlers, and exchange
// request/response pairs. The bus keeps a bounded chronological history
// of everything published, which the analytics package mines for
// reports.
//
// All delivery state lives behind a single mutex inside the Bus. Every
// operation observes a consistent snapshot, and every result handed out
// is a copy.
//
// # Routing
//
// Delivery mode is decided by the recipient:
//
//   - "broadcast" or "*" reaches every phase subscribed to the message
//     type at publish time.
//   - Any other recipient receives the message unconditionally, whether
//     or not it ever subscribed. Direct addressing bypasses
//     subscriptions.
//
// Unknown recipients are not an error; the message is queued and may
// never be read. Delivery is at-most-once, best-effort.
//
// # Pub/Sub
//
//	b := bus.New(bus.DefaultConfig())
//	b.Subscribe("qa", bus.FileCreated, bus.FileModified)
//
//	b.Broadcast("coding", bus.FileCreated, map[string]any{"path": "main.go"})
//
//	for _, msg := range b.GetMessages("qa", bus.QueueFilter{}) {
//	    // Handle message
//	}
//	b.ClearMessages("qa")
//
// # Request/Response
//
//	// Responder
//	b.RegisterHandler("planner", bus.PhaseRequest, func(msg *bus.Message) {
//	    b.SendResponse(msg, "planner", map[string]any{"result": "ok"})
//	})
//
//	// Requester: blocks until the response arrives or 5s elapse
//	resp := b.RequestResponse(ctx, "coding", "planner", bus.PhaseRequest,
//	    nil, 5*time.Second)
//	if resp == nil {
//	    // Timed out; retrying is the caller's responsibility
//	}
//
// The requester polls for its response at PollInterval, sleeping with the
// bus lock released, so waiting never blocks other callers.
//
// # Handlers
//
// Handlers registered with RegisterHandler run after the publishing
// operation has released the bus lock, so a handler may safely call any
// bus method. Handlers for different deliveries of the same publish are
// not mutually exclusive with other bus traffic; a handler that needs
// strict ordering relative to later publishes must arrange it itself.
// A panicking handler is logged and does not affect delivery to other
// recipients.
//
// # Retention
//
// Cleanup runs on every publish: history entries beyond HistoryTTL or the
// MaxHistory cap are dropped (most recent kept), the shared transient
// queue is capped at MaxQueue, phase queues are swept by TTL, and
// unclaimed responses expire after PendingTTL.
//
// # Durability
//
// An optional Persister receives every published message outside the bus
// lock. Persist failures are logged and never roll back the in-memory
// publish. See the persist package for archive implementations.
package bus
