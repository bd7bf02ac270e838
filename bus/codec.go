package bus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DeserializationError reports a serialized message that cannot be
// reconstructed: a missing required key, an unknown type or priority
// value, or malformed JSON.
type DeserializationError struct {
	Field string // wire key that failed, empty for document-level failures
	Value string // offending value as it appeared on the wire
	Err   error  // underlying cause, if any
}

func (e *DeserializationError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("deserialize message: invalid %s %q", e.Field, e.Value)
	case e.Field != "":
		return fmt.Sprintf("deserialize message: missing %s", e.Field)
	case e.Err != nil:
		return fmt.Sprintf("deserialize message: %v", e.Err)
	}
	return "deserialize message: invalid document"
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// UnmarshalJSON validates the type name against the closed set.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DeserializationError{Field: "type", Value: string(data), Err: err}
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts the integer form (0-3) or the symbolic name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Priority(n).Valid() {
			return &DeserializationError{Field: "priority", Value: string(data)}
		}
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DeserializationError{Field: "priority", Value: string(data), Err: err}
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// requiredKeys are the wire keys every serialized message must carry.
// The remaining keys are optional and default to their zero values.
var requiredKeys = []string{"id", "timestamp", "sender", "recipient", "type", "priority", "payload"}

// Marshal serializes the message to its wire form. Encoding is
// deterministic: decoding the result and re-encoding it reproduces the
// same bytes.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage reconstructs a message from its wire form. Unknown
// type or priority values and missing required keys fail with a
// *DeserializationError rather than defaulting.
func UnmarshalMessage(data []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, &DeserializationError{Field: key}
		}
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		var derr *DeserializationError
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, &DeserializationError{Err: err}
	}
	return &m, nil
}
