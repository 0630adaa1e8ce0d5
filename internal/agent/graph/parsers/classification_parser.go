package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	logx "github.com/gisa-chat/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxSlots      = 32
	maxSlotKeyLen = 64
	maxErrSnippet = 200
)

// ParseStatus tells whether the classifier output could be read.
type ParseStatus int

const (
	ParseOK ParseStatus = iota
	ParseFailed
)

func (s ParseStatus) String() string {
	if s == ParseOK {
		return "ok"
	}
	return "failed"
}

// ParseResult is the structured reading of a classifier reply. Intent is the
// raw label; vocabulary checks happen in the router.
type ParseResult struct {
	Status             ParseStatus
	Intent             string
	Slots              map[string]any
	NeedsClarification bool
	Reason             string
}

func failed(reason string) ParseResult {
	return ParseResult{Status: ParseFailed, Slots: map[string]any{}, Reason: reason}
}

type rawClassification struct {
	Intent             *string        `json:"intent"`
	Slots              map[string]any `json:"slots"`
	NeedsClarification any            `json:"needs_clarification"`
}

// ParseClassification scrapes the first JSON object out of free-form model
// text. It never panics and never returns an error: unreadable input yields
// a ParseFailed result.
func ParseClassification(content string) (res ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "classification_parser").Msgf("panic recovered: %v", r)
			res = failed("panic")
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "classification_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}

	obj := extractJSON(stripFences(content))
	if obj == "" {
		return failed(fmt.Sprintf("no json object: %s", safeSnippet(content)))
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return failed(fmt.Sprintf("invalid json: %v", err))
	}
	if raw.Intent == nil || strings.TrimSpace(*raw.Intent) == "" {
		return failed("missing intent")
	}

	return ParseResult{
		Status:             ParseOK,
		Intent:             strings.TrimSpace(*raw.Intent),
		Slots:              sanitizeSlots(raw.Slots),
		NeedsClarification: parseBool(raw.NeedsClarification),
	}
}

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	return strings.ReplaceAll(s, "```", "")
}

// extractJSON returns the span from the first '{' to the last '}'.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// sanitizeSlots drops empty keys, null values and blank strings.
func sanitizeSlots(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if len(out) >= maxSlots {
			break
		}
		k = strings.TrimSpace(k)
		if k == "" || len(k) > maxSlotKeyLen || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
				continue
			}
			v = s
		}
		out[k] = v
	}
	return out
}

func parseBool(v any) bool {
	switch vv := v.(type) {
	case bool:
		return vv
	case string:
		switch strings.ToLower(strings.TrimSpace(vv)) {
		case "true", "yes", "1", "si", "sì":
			return true
		}
	case float64:
		return vv != 0
	}
	return false
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
