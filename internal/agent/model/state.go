package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the position of a turn in the conversation graph.
type Stage string

const (
	StageStart      Stage = "start"
	StageClassified Stage = "classified"
	StageDispatched Stage = "dispatched"
	StageFinalized  Stage = "finalized"
)

// Metadata scopes downstream queries. Every field is optional; empty means absent.
type Metadata struct {
	ASL           string `json:"asl,omitempty"`
	ASLID         string `json:"asl_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	CodiceFiscale string `json:"codice_fiscale,omitempty"`
	Username      string `json:"username,omitempty"`
	UOC           string `json:"uoc,omitempty"`

	// Sender is copied from the request envelope; it never travels in metadata.
	Sender string `json:"-"`
}

// Slots holds values extracted from the user text, e.g. piano_code or topic.
type Slots map[string]any

// String returns the trimmed string form of key, or "" when absent.
func (s Slots) String(key string) string {
	if s == nil {
		return ""
	}
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case float64:
		if vv == float64(int64(vv)) {
			return fmt.Sprintf("%d", int64(vv))
		}
		return fmt.Sprintf("%g", vv)
	default:
		return strings.TrimSpace(fmt.Sprint(vv))
	}
}

// Clone returns a shallow copy that is never nil.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// TurnState stores per-invocation state for the conversation graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState, so every
//     Invoke gets its own instance.
//   - Read and written only inside eino state handlers or compose.ProcessState,
//     which serialize access; no extra locking is needed.
type TurnState struct {
	TurnID             string
	Message            string
	Metadata           Metadata
	Intent             Intent
	Slots              Slots
	ToolOutput         *ToolOutput
	ToolName           string
	FinalResponse      string
	Suggestions        []Suggestion
	NeedsClarification bool
	HasMoreDetails     bool
	Error              string
	Stage              Stage
	StartedAt          time.Time
}

// Snapshot returns a copy safe to hand out after the run ends.
func (s *TurnState) Snapshot() *TurnState {
	cp := *s
	cp.Slots = s.Slots.Clone()
	if s.ToolOutput != nil {
		out := *s.ToolOutput
		cp.ToolOutput = &out
	}
	if s.Suggestions != nil {
		cp.Suggestions = append([]Suggestion(nil), s.Suggestions...)
	}
	return &cp
}

// TurnInput starts a graph run.
type TurnInput struct {
	TurnID   string
	Message  string
	Metadata Metadata
}

// ClassificationResult is the router's output contract.
type ClassificationResult struct {
	Intent             Intent `json:"intent"`
	Slots              Slots  `json:"slots"`
	NeedsClarification bool   `json:"needs_clarification"`
	Error              string `json:"error,omitempty"`
}

// ToolOutput is what a dispatched handler produced. FormattedResponse or Error
// is always non-empty.
type ToolOutput struct {
	FormattedResponse string         `json:"formatted_response,omitempty"`
	Error             string         `json:"error,omitempty"`
	HasMoreDetails    bool           `json:"has_more_details,omitempty"`
	Details           string         `json:"details,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

// Failed reports whether the handler signalled an error.
func (o ToolOutput) Failed() bool {
	return o.Error != ""
}

// Suggestion is a follow-up the user can pick next.
type Suggestion struct {
	Text  string `json:"text"`
	Query string `json:"query,omitempty"`
}

// ChatRequest is the inbound chat message.
type ChatRequest struct {
	Sender   string    `json:"sender"`
	Message  string    `json:"message"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Execution describes how a turn was served.
type Execution struct {
	TurnID     string `json:"turn_id"`
	Tool       string `json:"tool,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ChatResult is the externally visible outcome of a turn.
type ChatResult struct {
	Text               string       `json:"text"`
	Intent             Intent       `json:"intent"`
	Slots              Slots        `json:"slots"`
	Suggestions        []Suggestion `json:"suggestions"`
	Execution          *Execution   `json:"execution,omitempty"`
	NeedsClarification bool         `json:"needs_clarification"`
	HasMoreDetails     bool         `json:"has_more_details"`
	Error              string       `json:"error,omitempty"`
}

// ChatResponse wraps a result for the wire.
type ChatResponse struct {
	Result ChatResult `json:"result"`
	Sender string     `json:"sender"`
}

// StreamEvent is the single terminal event of the streaming endpoint.
type StreamEvent struct {
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Result    ChatResult `json:"result"`
}
