package bus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of event a message carries.
// The set of valid types is closed; ParseMessageType rejects anything else.
type MessageType string

// Task lifecycle events.
const (
	TaskCreated   MessageType = "task_created"
	TaskStarted   MessageType = "task_started"
	TaskCompleted MessageType = "task_completed"
	TaskFailed    MessageType = "task_failed"
	TaskBlocked   MessageType = "task_blocked"
)

// Issue lifecycle events.
const (
	IssueFound      MessageType = "issue_found"
	IssueAssigned   MessageType = "issue_assigned"
	IssueInProgress MessageType = "issue_in_progress"
	IssueResolved   MessageType = "issue_resolved"
	IssueVerified   MessageType = "issue_verified"
	IssueClosed     MessageType = "issue_closed"
	IssueReopened   MessageType = "issue_reopened"
)

// Objective lifecycle events.
const (
	ObjectiveActivated  MessageType = "objective_activated"
	ObjectiveBlocked    MessageType = "objective_blocked"
	ObjectiveDegrading  MessageType = "objective_degrading"
	ObjectiveCritical   MessageType = "objective_critical"
	ObjectiveCompleted  MessageType = "objective_completed"
	ObjectiveDocumented MessageType = "objective_documented"
)

// Phase coordination events.
const (
	PhaseTransition MessageType = "phase_transition"
	PhaseStarted    MessageType = "phase_started"
	PhaseCompleted  MessageType = "phase_completed"
	PhaseError      MessageType = "phase_error"
	PhaseRequest    MessageType = "phase_request"
	PhaseResponse   MessageType = "phase_response"
	PhaseTimeout    MessageType = "phase_timeout"
)

// System and health events.
const (
	SystemAlert     MessageType = "system_alert"
	SystemWarning   MessageType = "system_warning"
	SystemInfo      MessageType = "system_info"
	HealthCheck     MessageType = "health_check"
	HealthDegraded  MessageType = "health_degraded"
	HealthRecovered MessageType = "health_recovered"
)

// File events.
const (
	FileCreated  MessageType = "file_created"
	FileModified MessageType = "file_modified"
	FileDeleted  MessageType = "file_deleted"
	FileQAPassed MessageType = "file_qa_passed"
	FileQAFailed MessageType = "file_qa_failed"
)

// Analytics events.
const (
	PredictionGenerated MessageType = "prediction_generated"
	AnomalyDetected     MessageType = "anomaly_detected"
	TrendIdentified     MessageType = "trend_identified"
	MetricUpdated       MessageType = "metric_updated"
)

// Valid reports whether t is one of the closed set of message types.
func (t MessageType) Valid() bool {
	switch t {
	case TaskCreated, TaskStarted, TaskCompleted, TaskFailed, TaskBlocked,
		IssueFound, IssueAssigned, IssueInProgress, IssueResolved,
		IssueVerified, IssueClosed, IssueReopened,
		ObjectiveActivated, ObjectiveBlocked, ObjectiveDegrading,
		ObjectiveCritical, ObjectiveCompleted, ObjectiveDocumented,
		PhaseTransition, PhaseStarted, PhaseCompleted, PhaseError,
		PhaseRequest, PhaseResponse, PhaseTimeout,
		SystemAlert, SystemWarning, SystemInfo,
		HealthCheck, HealthDegraded, HealthRecovered,
		FileCreated, FileModified, FileDeleted, FileQAPassed, FileQAFailed,
		PredictionGenerated, AnomalyDetected, TrendIdentified, MetricUpdated:
		return true
	}
	return false
}

// IsError reports whether the canonical type name marks an error event.
// Pattern detection groups repeated errors by this predicate.
func (t MessageType) IsError() bool {
	return strings.Contains(strings.ToLower(string(t)), "error")
}

// String returns the canonical type name.
func (t MessageType) String() string {
	return string(t)
}

// ParseMessageType converts a canonical type name to a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", &DeserializationError{Field: "type", Value: s}
	}
	return t, nil
}

// Priority orders messages for retrieval. Lower value = more urgent.
type Priority int

const (
	PriorityCritical Priority = iota // 0
	PriorityHigh                     // 1
	PriorityNormal                   // 2
	PriorityLow                      // 3
)

// String returns the symbolic priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// ParsePriority converts a symbolic name (case-insensitive) to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "LOW":
		return PriorityLow, nil
	}
	return 0, &DeserializationError{Field: "priority", Value: s}
}

// Broadcast recipient markers. A message addressed to either value is
// delivered to every phase subscribed to its type.
const (
	BroadcastRecipient = "broadcast"
	BroadcastWildcard  = "*"
)

// Message is one unit of communication between phases. Once constructed,
// its identity and content are never mutated; a response is a new Message
// linked through InResponseTo.
type Message struct {
	// Identity & routing
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Type      MessageType `json:"type"`
	Priority  Priority    `json:"priority"`

	// Payload varies by message type and is not validated by the bus.
	Payload map[string]any `json:"payload"`

	// Context links
	ObjectiveID string `json:"objectiveId,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	IssueID     string `json:"issueId,omitempty"`
	FilePath    string `json:"filePath,omitempty"`

	// Request/response
	RequiresResponse bool   `json:"requiresResponse"`
	ResponseTimeout  int    `json:"responseTimeout,omitempty"` // seconds
	InResponseTo     string `json:"inResponseTo,omitempty"`

	// Labels
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

// MessageOption customizes a message at construction time.
type MessageOption func(*Message)

// WithID sets an explicit message ID (replay and persistence rehydration).
func WithID(id string) MessageOption {
	return func(m *Message) { m.ID = id }
}

// WithTimestamp sets an explicit creation time.
func WithTimestamp(ts time.Time) MessageOption {
	return func(m *Message) { m.Timestamp = ts }
}

// WithPriority overrides the default NORMAL priority.
func WithPriority(p Priority) MessageOption {
	return func(m *Message) { m.Priority = p }
}

// WithObjectiveID links the message to an objective.
func WithObjectiveID(id string) MessageOption {
	return func(m *Message) { m.ObjectiveID = id }
}

// WithTaskID links the message to a task.
func WithTaskID(id string) MessageOption {
	return func(m *Message) { m.TaskID = id }
}

// WithIssueID links the message to an issue.
func WithIssueID(id string) MessageOption {
	return func(m *Message) { m.IssueID = id }
}

// WithFilePath links the message to a file.
func WithFilePath(path string) MessageOption {
	return func(m *Message) { m.FilePath = path }
}

// WithRequiresResponse marks the message as expecting a response within
// timeoutSeconds.
func WithRequiresResponse(timeoutSeconds int) MessageOption {
	return func(m *Message) {
		m.RequiresResponse = true
		m.ResponseTimeout = timeoutSeconds
	}
}

// WithInResponseTo links the message to the request it answers.
func WithInResponseTo(id string) MessageOption {
	return func(m *Message) { m.InResponseTo = id }
}

// WithTags sets the message tags.
func WithTags(tags ...string) MessageOption {
	return func(m *Message) { m.Tags = tags }
}

// WithMetadata sets the message metadata.
func WithMetadata(md map[string]any) MessageOption {
	return func(m *Message) { m.Metadata = md }
}

// NewMessage creates a message with a generated ID and the current time,
// unless options override them. Priority defaults to NORMAL.
func NewMessage(sender, recipient string, t MessageType, payload map[string]any, opts ...MessageOption) *Message {
	m := &Message{
		Sender:    sender,
		Recipient: recipient,
		Type:      t,
		Priority:  PriorityNormal,
		Payload:   payload,
		Tags:      []string{},
		Metadata:  map[string]any{},
	}
	if m.Payload == nil {
		m.Payload = map[string]any{}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return m
}

// IsBroadcast reports whether the message is addressed to all subscribers.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient || m.Recipient == BroadcastWildcard
}

// IsForRecipient reports whether the given phase should see this message,
// either by direct address or broadcast.
func (m *Message) IsForRecipient(phase string) bool {
	return m.Recipient == phase || m.IsBroadcast()
}

// IsCritical reports whether the message has CRITICAL priority.
func (m *Message) IsCritical() bool {
	return m.Priority == PriorityCritical
}

// IsHighPriority reports whether the message has CRITICAL or HIGH priority.
func (m *Message) IsHighPriority() bool {
	return m.Priority <= PriorityHigh
}

// Clone returns a copy of the message with its own payload, tags, and
// metadata containers. Nested payload values are shared.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Payload = maps.Clone(m.Payload)
	c.Tags = slices.Clone(m.Tags)
	c.Metadata = maps.Clone(m.Metadata)
	return &c
}

// String returns a short human-readable form for logs.
func (m *Message) String() string {
	return fmt.Sprintf("[%s] %s -> %s: %s", m.Priority, m.Sender, m.Recipient, m.Type)
}
