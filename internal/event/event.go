package event

// Type identifies an event variant by its wire discriminator.
type Type string

const (
	TypeRunStart               Type = "run_start"
	TypePhaseStart             Type = "phase_start"
	TypePhaseComplete          Type = "phase_complete"
	TypeProgress               Type = "progress"
	TypeTableStart             Type = "table_start"
	TypeTableComplete          Type = "table_complete"
	TypeTableError             Type = "table_error"
	TypeText                   Type = "text"
	TypeTokenUpdate            Type = "token_update"
	TypeClarificationRequested Type = "clarification_requested"
	TypeMessageComplete        Type = "message_complete"
	TypeRunComplete            Type = "run_complete"
	TypeMessageError           Type = "message_error"
	TypeRunError               Type = "run_error"
	TypePreferenceSuggested    Type = "preference_suggested"
	TypePreferenceAutoSaved    Type = "preference_auto_saved"
	// TypeUnknown carries any discriminator this client does not know.
	TypeUnknown Type = "unknown"
)

// Known reports whether t is one of the recognized variants.
func (t Type) Known() bool {
	switch t {
	case TypeRunStart, TypePhaseStart, TypePhaseComplete, TypeProgress,
		TypeTableStart, TypeTableComplete, TypeTableError, TypeText,
		TypeTokenUpdate, TypeClarificationRequested, TypeMessageComplete,
		TypeRunComplete, TypeMessageError, TypeRunError,
		TypePreferenceSuggested, TypePreferenceAutoSaved:
		return true
	default:
		return false
	}
}

// Completes reports whether the variant ends a run successfully.
func (t Type) Completes() bool {
	return t == TypeMessageComplete || t == TypeRunComplete
}

// Fails reports whether the variant ends a run with an upstream error.
func (t Type) Fails() bool {
	return t == TypeMessageError || t == TypeRunError
}

// Terminal reports whether the variant ends a run.
func (t Type) Terminal() bool {
	return t.Completes() || t.Fails()
}

// Tokens holds cumulative token totals reported by the server.
type Tokens struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Question is one clarification question posed to the user.
type Question struct {
	ID      string   `json:"id,omitempty"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// FailedItem names one item a pipeline run could not process.
type FailedItem struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// Preference is a suggested or saved user preference.
type Preference struct {
	ID          string `json:"id,omitempty"`
	Key         string `json:"key,omitempty"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// Event is one parsed stream event. Only the fields of its Type are set.
type Event struct {
	Type Type `json:"type"`

	Phase       string `json:"phase,omitempty"`
	Description string `json:"description,omitempty"`

	Table    string   `json:"table,omitempty"`
	Percent  *float64 `json:"percent,omitempty"`
	RowCount *int     `json:"rowCount,omitempty"`
	Error    string   `json:"error,omitempty"`

	Content string  `json:"content,omitempty"`
	Tokens  *Tokens `json:"tokens,omitempty"`

	Questions []Question `json:"questions,omitempty"`

	Status      string         `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Result      any            `json:"result,omitempty"`
	FailedItems []FailedItem   `json:"failedItems,omitempty"`
	DurationMs  *int64         `json:"durationMs,omitempty"`

	Message string `json:"message,omitempty"`

	Preferences []Preference `json:"preferences,omitempty"`

	// Raw holds the original payload for unknown variants.
	Raw string `json:"raw,omitempty"`
}

// RunError builds the event used for client-side connection failures.
func RunError(message string) Event {
	return Event{Type: TypeRunError, Message: message}
}
