package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a single typed request routed to the agent serving its capability.
// Messages are immutable once built and live only inside their thread's log.
type Message struct {
	ID         string     `json:"id"`
	Capability Capability `json:"capability"`
	Payload    Payload    `json:"payload"`
	Timestamp  time.Time  `json:"timestamp"`
	ThreadID   string     `json:"threadId"`
}

// Payload is the capability-specific body of a Message. Exactly one
// implementation exists per capability.
type Payload interface {
	Capability() Capability
}

// RequestContext is the caller-supplied context of an orchestration request.
// Code counts as present only when non-empty.
type RequestContext struct {
	Code      string         `json:"code,omitempty"`
	FilePath  string         `json:"filePath,omitempty"`
	FileType  string         `json:"fileType,omitempty"`
	Framework string         `json:"framework,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HasCode reports whether source code was supplied.
func (c RequestContext) HasCode() bool { return c.Code != "" }

// PromptRefinePayload asks the prompt-refine agent to improve a user request.
type PromptRefinePayload struct {
	UserRequest string         `json:"userRequest"`
	Context     RequestContext `json:"context"`
}

// UIGenPayload asks the ui-gen agent for a UI schema.
type UIGenPayload struct {
	Prompt   string         `json:"prompt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorFlagPayload asks the error-flag agent to analyze source code.
type ErrorFlagPayload struct {
	Code     string `json:"code"`
	FilePath string `json:"filePath,omitempty"`
}

// CodeFixPayload asks the code-fix agent to repair flagged issues.
type CodeFixPayload struct {
	FilePath string      `json:"filePath"`
	Code     string      `json:"code"`
	Errors   []ErrorFlag `json:"errors"`
}

func (PromptRefinePayload) Capability() Capability { return CapabilityPromptRefine }
func (UIGenPayload) Capability() Capability        { return CapabilityUIGen }
func (ErrorFlagPayload) Capability() Capability    { return CapabilityErrorFlag }
func (CodeFixPayload) Capability() Capability      { return CapabilityCodeFix }

// Severity grades a flagged issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueType categorizes a flagged issue.
type IssueType string

const (
	IssueBug         IssueType = "bug"
	IssueSecurity    IssueType = "security"
	IssueStyle       IssueType = "style"
	IssuePerformance IssueType = "performance"
)

// ErrorFlag is one issue reported by the error-flag agent.
type ErrorFlag struct {
	Line       int       `json:"line"`
	Column     int       `json:"column,omitempty"`
	Severity   Severity  `json:"severity,omitempty"`
	Message    string    `json:"message"`
	Type       IssueType `json:"type,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// FixAction is how a generated fix is applied.
type FixAction string

const (
	FixReplace FixAction = "replace"
	FixComment FixAction = "comment"
	FixSuggest FixAction = "suggest"
)

// Fix describes a single code transformation.
type Fix struct {
	Action      FixAction `json:"action"`
	Pattern     string    `json:"pattern,omitempty"`
	Replacement string    `json:"replacement,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	Line        int       `json:"line,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// GeneratedFix pairs a flagged issue with the fix proposed for it.
type GeneratedFix struct {
	ErrorID     int       `json:"errorId"`
	Type        IssueType `json:"type"`
	Description string    `json:"description"`
	Fix         Fix       `json:"fix"`
	Confidence  float64   `json:"confidence"`
	Automated   bool      `json:"automated"`
}

// MarshalJSON is implemented on the value so the payload variant is encoded
// as-is.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID         string     `json:"id"`
		Capability Capability `json:"capability"`
		Payload    any        `json:"payload"`
		Timestamp  time.Time  `json:"timestamp"`
		ThreadID   string     `json:"threadId"`
	}
	return json.Marshal(wire{
		ID:         m.ID,
		Capability: m.Capability,
		Payload:    m.Payload,
		Timestamp:  m.Timestamp,
		ThreadID:   m.ThreadID,
	})
}

// UnmarshalJSON decodes the payload into the variant named by capability.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID         string          `json:"id"`
		Capability Capability      `json:"capability"`
		Payload    json.RawMessage `json:"payload"`
		Timestamp  time.Time       `json:"timestamp"`
		ThreadID   string          `json:"threadId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := DecodePayload(wire.Capability, wire.Payload)
	if err != nil {
		return err
	}
	*m = Message{
		ID:         wire.ID,
		Capability: wire.Capability,
		Payload:    payload,
		Timestamp:  wire.Timestamp,
		ThreadID:   wire.ThreadID,
	}
	return nil
}

// DecodePayload decodes raw JSON into the payload variant for c.
// An empty or null body yields the zero value of the variant.
func DecodePayload(c Capability, raw json.RawMessage) (Payload, error) {
	var err error
	switch c {
	case CapabilityPromptRefine:
		var p PromptRefinePayload
		err = decodeOptional(raw, &p)
		return p, err
	case CapabilityUIGen:
		var p UIGenPayload
		err = decodeOptional(raw, &p)
		return p, err
	case CapabilityErrorFlag:
		var p ErrorFlagPayload
		err = decodeOptional(raw, &p)
		return p, err
	case CapabilityCodeFix:
		var p CodeFixPayload
		err = decodeOptional(raw, &p)
		return p, err
	}
	return nil, fmt.Errorf("payload for capability %q: %w", c, ErrInvalidInput)
}

func decodeOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// AgentRequest is the JSON body POSTed to an agent endpoint.
type AgentRequest struct {
	Message Message   `json:"message"`
	Thread  []Message `json:"thread"`
}
