package bus

import (
	"testing"
	"time"
)

// --- Unit Tests ---

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"task_created", false},
		{"issue_found", false},
		{"phase_response", false},
		{"metric_updated", false},
		{"", true},
		{"task_exploded", true},
		{"TASK_CREATED", true},
	}

	for _, tt := range tests {
		parsed, err := ParseMessageType(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMessageType(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if !tt.wantErr && parsed.String() != tt.name {
			t.Errorf("ParseMessageType(%q) = %q", tt.name, parsed)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name    string
		want    Priority
		wantErr bool
	}{
		{"CRITICAL", PriorityCritical, false},
		{"HIGH", PriorityHigh, false},
		{"NORMAL", PriorityNormal, false},
		{"LOW", PriorityLow, false},
		{"critical", PriorityCritical, false},
		{"Low", PriorityLow, false},
		{"URGENT", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPriority_Ordering(t *testing.T) {
	if PriorityCritical != 0 || PriorityHigh != 1 || PriorityNormal != 2 || PriorityLow != 3 {
		t.Errorf("priority values = %d %d %d %d, want 0 1 2 3",
			PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow)
	}
}

func TestMessageType_IsError(t *testing.T) {
	if !PhaseError.IsError() {
		t.Error("phase_error should be error-named")
	}
	if TaskFailed.IsError() {
		t.Error("task_failed is not error-named")
	}
	if IssueFound.IsError() {
		t.Error("issue_found is not error-named")
	}
}

func TestNewMessage_Defaults(t *testing.T) {
	msg := NewMessage("planning", "coding", TaskCreated, nil)

	if msg.ID == "" {
		t.Error("expected generated ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if msg.Priority != PriorityNormal {
		t.Errorf("priority = %v, want NORMAL", msg.Priority)
	}
	if msg.Payload == nil {
		t.Error("expected non-nil payload")
	}
	if msg.Tags == nil || msg.Metadata == nil {
		t.Error("expected non-nil tags and metadata")
	}
	if msg.RequiresResponse {
		t.Error("expected RequiresResponse false by default")
	}
}

func TestNewMessage_Options(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage("qa", "debugging", IssueFound, map[string]any{"severity": "high"},
		WithID("msg-1"),
		WithTimestamp(ts),
		WithPriority(PriorityCritical),
		WithObjectiveID("obj-1"),
		WithTaskID("task-1"),
		WithIssueID("issue-1"),
		WithFilePath("pkg/core/engine.go"),
		WithRequiresResponse(10),
		WithInResponseTo("msg-0"),
		WithTags("security", "urgent"),
		WithMetadata(map[string]any{"source": "scanner"}),
	)

	if msg.ID != "msg-1" {
		t.Errorf("ID = %q, want msg-1", msg.ID)
	}
	if !msg.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, ts)
	}
	if msg.Priority != PriorityCritical {
		t.Errorf("Priority = %v, want CRITICAL", msg.Priority)
	}
	if msg.ObjectiveID != "obj-1" || msg.TaskID != "task-1" || msg.IssueID != "issue-1" {
		t.Errorf("context links = %q %q %q", msg.ObjectiveID, msg.TaskID, msg.IssueID)
	}
	if msg.FilePath != "pkg/core/engine.go" {
		t.Errorf("FilePath = %q", msg.FilePath)
	}
	if !msg.RequiresResponse || msg.ResponseTimeout != 10 {
		t.Errorf("RequiresResponse = %v, ResponseTimeout = %d", msg.RequiresResponse, msg.ResponseTimeout)
	}
	if msg.InResponseTo != "msg-0" {
		t.Errorf("InResponseTo = %q", msg.InResponseTo)
	}
	if len(msg.Tags) != 2 || msg.Tags[0] != "security" {
		t.Errorf("Tags = %v", msg.Tags)
	}
	if msg.Metadata["source"] != "scanner" {
		t.Errorf("Metadata = %v", msg.Metadata)
	}
}

func TestMessage_IsBroadcast(t *testing.T) {
	tests := []struct {
		recipient string
		want      bool
	}{
		{"broadcast", true},
		{"*", true},
		{"qa", false},
		{"", false},
	}

	for _, tt := range tests {
		msg := NewMessage("planning", tt.recipient, SystemInfo, nil)
		if got := msg.IsBroadcast(); got != tt.want {
			t.Errorf("IsBroadcast(recipient=%q) = %v, want %v", tt.recipient, got, tt.want)
		}
	}
}

func TestMessage_IsForRecipient(t *testing.T) {
	direct := NewMessage("planning", "qa", SystemInfo, nil)
	if !direct.IsForRecipient("qa") {
		t.Error("direct message should be for its recipient")
	}
	if direct.IsForRecipient("coding") {
		t.Error("direct message should not be for another phase")
	}

	bcast := NewMessage("planning", "broadcast", SystemInfo, nil)
	if !bcast.IsForRecipient("qa") || !bcast.IsForRecipient("coding") {
		t.Error("broadcast message should be for every phase")
	}
}

func TestMessage_PriorityPredicates(t *testing.T) {
	critical := NewMessage("a", "b", SystemAlert, nil, WithPriority(PriorityCritical))
	high := NewMessage("a", "b", SystemWarning, nil, WithPriority(PriorityHigh))
	normal := NewMessage("a", "b", SystemInfo, nil)

	if !critical.IsCritical() || !critical.IsHighPriority() {
		t.Error("CRITICAL should satisfy both predicates")
	}
	if high.IsCritical() {
		t.Error("HIGH is not critical")
	}
	if !high.IsHighPriority() {
		t.Error("HIGH should be high priority")
	}
	if normal.IsCritical() || normal.IsHighPriority() {
		t.Error("NORMAL should satisfy neither predicate")
	}
}

func TestMessage_Clone(t *testing.T) {
	msg := NewMessage("planning", "coding", TaskCreated,
		map[string]any{"title": "build parser"},
		WithTags("backend"),
		WithMetadata(map[string]any{"origin": "planner"}),
	)

	clone := msg.Clone()
	if clone == msg {
		t.Fatal("clone should be a distinct value")
	}
	if clone.ID != msg.ID || clone.Type != msg.Type {
		t.Error("clone should preserve identity and content")
	}

	clone.Payload["title"] = "mutated"
	clone.Tags[0] = "mutated"
	clone.Metadata["origin"] = "mutated"

	if msg.Payload["title"] != "build parser" {
		t.Error("mutating clone payload leaked into original")
	}
	if msg.Tags[0] != "backend" {
		t.Error("mutating clone tags leaked into original")
	}
	if msg.Metadata["origin"] != "planner" {
		t.Error("mutating clone metadata leaked into original")
	}
}

func TestMessage_CloneNil(t *testing.T) {
	var msg *Message
	if msg.Clone() != nil {
		t.Error("cloning nil should yield nil")
	}
}
