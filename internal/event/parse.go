package event

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrParse matches every payload the parser could not turn into an event.
var ErrParse = errors.New("event parse error")

// ParseError describes a malformed frame payload.
type ParseError struct {
	Payload string
	Reason  string
	Err     error
}

// Error renders the parse failure with a truncated payload.
func (e *ParseError) Error() string {
	message := "parse event: " + e.Reason
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message + " (payload " + quotePayload(e.Payload) + ")"
}

// Is makes ParseError match ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Unwrap exposes the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes one frame payload. Unknown discriminators produce a
// TypeUnknown event; malformed payloads return a *ParseError.
func Parse(payload string) (Event, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return Event{}, &ParseError{Payload: payload, Reason: "empty payload"}
	}
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal([]byte(trimmed), &head); err != nil {
		return Event{}, &ParseError{Payload: payload, Reason: "invalid json", Err: err}
	}
	if head.Type == nil || strings.TrimSpace(*head.Type) == "" {
		return Event{}, &ParseError{Payload: payload, Reason: "missing type"}
	}
	kind := Type(strings.TrimSpace(*head.Type))
	if !kind.Known() {
		return Event{Type: TypeUnknown, Raw: payload}, nil
	}

	var wire wireEvent
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return Event{}, &ParseError{Payload: payload, Reason: fmt.Sprintf("invalid %s fields", kind), Err: err}
	}
	return wire.event(kind), nil
}

// wireEvent mirrors every field any producer sends.
type wireEvent struct {
	Phase       string   `json:"phase"`
	Description string   `json:"description"`
	Table       string   `json:"table"`
	Percent     *float64 `json:"percent"`
	RowCount    *int     `json:"rowCount"`
	RowCountAlt *int     `json:"row_count"`
	Error       text     `json:"error"`
	Content     text     `json:"content"`

	Prompt        *int `json:"prompt"`
	Completion    *int `json:"completion"`
	Total         *int `json:"total"`
	PromptAlt     *int `json:"prompt_tokens"`
	CompletionAlt *int `json:"completion_tokens"`
	TotalAlt      *int `json:"total_tokens"`

	Questions []wireQuestion `json:"questions"`

	Status         string           `json:"status"`
	Metadata       map[string]any   `json:"metadata"`
	Result         any              `json:"result"`
	FailedItems    []wireFailedItem `json:"failedItems"`
	FailedItemsAlt []wireFailedItem `json:"failed_items"`
	DurationMs     *int64           `json:"durationMs"`
	DurationMsAlt  *int64           `json:"duration_ms"`

	Message text `json:"message"`

	Suggestions []Preference `json:"suggestions"`
	Items       []Preference `json:"items"`
}

// event converts the wire shape into the variant selected by kind.
func (w wireEvent) event(kind Type) Event {
	out := Event{Type: kind}
	switch kind {
	case TypePhaseStart:
		out.Phase = w.Phase
		out.Description = w.Description
	case TypePhaseComplete:
		out.Phase = w.Phase
	case TypeProgress:
		out.Table = w.Table
		out.Phase = w.Phase
		percent := 0.0
		if w.Percent != nil {
			percent = *w.Percent
		}
		out.Percent = &percent
	case TypeTableStart:
		out.Table = w.Table
	case TypeTableComplete:
		out.Table = w.Table
		out.RowCount = firstInt(w.RowCount, w.RowCountAlt)
	case TypeTableError:
		out.Table = w.Table
		out.Error = string(w.Error)
	case TypeText:
		out.Content = string(w.Content)
	case TypeTokenUpdate:
		out.Tokens = &Tokens{
			Prompt:     valueOf(firstInt(w.Prompt, w.PromptAlt)),
			Completion: valueOf(firstInt(w.Completion, w.CompletionAlt)),
			Total:      valueOf(firstInt(w.Total, w.TotalAlt)),
		}
	case TypeClarificationRequested:
		out.Questions = make([]Question, 0, len(w.Questions))
		for _, question := range w.Questions {
			out.Questions = append(out.Questions, Question(question))
		}
	case TypeMessageComplete:
		out.Content = string(w.Content)
		out.Status = w.Status
		out.Metadata = w.Metadata
	case TypeRunComplete:
		out.Result = w.Result
		items := w.FailedItems
		if items == nil {
			items = w.FailedItemsAlt
		}
		for _, item := range items {
			out.FailedItems = append(out.FailedItems, FailedItem(item))
		}
		out.DurationMs = w.DurationMs
		if out.DurationMs == nil {
			out.DurationMs = w.DurationMsAlt
		}
	case TypeMessageError, TypeRunError:
		out.Message = string(w.Message)
		if out.Message == "" {
			out.Message = string(w.Error)
		}
	case TypePreferenceSuggested:
		out.Preferences = w.Suggestions
	case TypePreferenceAutoSaved:
		out.Preferences = w.Items
	}
	return out
}

// text accepts a JSON string, or renders any other JSON value as text.
// Error objects with a "message" field collapse to that message.
type text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err == nil {
		*t = text(value)
		return nil
	}
	var object struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &object); err == nil && object.Message != nil {
		*t = text(*object.Message)
		return nil
	}
	*t = text(data)
	return nil
}

// wireQuestion accepts a bare question string or a question object.
type wireQuestion Question

// UnmarshalJSON implements json.Unmarshaler.
func (q *wireQuestion) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err == nil {
		*q = wireQuestion{Text: value}
		return nil
	}
	var object struct {
		ID       string   `json:"id"`
		Text     string   `json:"text"`
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}
	questionText := object.Text
	if questionText == "" {
		questionText = object.Question
	}
	*q = wireQuestion{ID: object.ID, Text: questionText, Options: object.Options}
	return nil
}

// wireFailedItem accepts a bare item name or an item object.
type wireFailedItem FailedItem

// UnmarshalJSON implements json.Unmarshaler.
func (f *wireFailedItem) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err == nil {
		*f = wireFailedItem{Name: value}
		return nil
	}
	var object struct {
		Name  string `json:"name"`
		Table string `json:"table"`
		Error text   `json:"error"`
	}
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}
	name := object.Name
	if name == "" {
		name = object.Table
	}
	*f = wireFailedItem{Name: name, Error: string(object.Error)}
	return nil
}

func firstInt(values ...*int) *int {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

func valueOf(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

// quotePayload shortens payloads for error messages.
func quotePayload(payload string) string {
	const limit = 120
	if len(payload) > limit {
		payload = payload[:limit-3] + "..."
	}
	return fmt.Sprintf("%q", payload)
}
