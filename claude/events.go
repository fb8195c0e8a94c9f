// Package claude launches the Claude Code CLI in non-interactive streaming
// mode and turns its stdout into a channel of typed events.
package claude

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one parsed line of the CLI's stream-json output. The CLI emits
// self-contained JSON objects, one per line, discriminated by "type".
type Event struct {
	Type      string
	SessionID string

	// Tools holds the tool_use blocks of an assistant event, in order.
	Tools []ToolCall

	// Result is set when Type == "result"; it terminates the exchange.
	Result *Result
}

type ToolCall struct {
	Name  string
	Input map[string]any
}

type Result struct {
	Text       string
	IsError    bool
	NumTurns   int
	DurationMS int64
	CostUSD    float64
}

type rawEvent struct {
	Type         string      `json:"type"`
	Subtype      string      `json:"subtype,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	Result       string      `json:"result,omitempty"`
	IsError      bool        `json:"is_error,omitempty"`
	NumTurns     int         `json:"num_turns,omitempty"`
	DurationMS   int64       `json:"duration_ms,omitempty"`
	TotalCostUSD float64     `json:"total_cost_usd,omitempty"`
	Message      *rawMessage `json:"message,omitempty"`
}

type rawMessage struct {
	Content []rawContentBlock `json:"content,omitempty"`
}

type rawContentBlock struct {
	Type  string         `json:"type"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
	Text  string         `json:"text,omitempty"`
}

// ParseEvent decodes a single stream line. ok is false for blank or
// malformed lines; the caller skips those and keeps reading.
func ParseEvent(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, false
	}
	if strings.TrimSpace(raw.Type) == "" {
		return Event{}, false
	}

	ev := Event{
		Type:      raw.Type,
		SessionID: strings.TrimSpace(raw.SessionID),
	}

	switch raw.Type {
	case "assistant":
		if raw.Message != nil {
			for _, block := range raw.Message.Content {
				if block.Type != "tool_use" || strings.TrimSpace(block.Name) == "" {
					continue
				}
				ev.Tools = append(ev.Tools, ToolCall{Name: block.Name, Input: block.Input})
			}
		}
	case "result":
		ev.Result = &Result{
			Text:       raw.Result,
			IsError:    raw.IsError,
			NumTurns:   raw.NumTurns,
			DurationMS: raw.DurationMS,
			CostUSD:    raw.TotalCostUSD,
		}
	}
	return ev, true
}
