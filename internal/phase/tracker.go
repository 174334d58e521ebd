package phase

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of one phase.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Visibility controls which canonical phases are listed before they are seen.
type Visibility string

const (
	// VisibilityObserved lists only phases that were started or completed.
	VisibilityObserved Visibility = "observed"
	// VisibilityPreseed lists every canonical phase, pending until observed.
	VisibilityPreseed Visibility = "preseed"
)

// ParseVisibility resolves a configured visibility policy.
func ParseVisibility(value string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(VisibilityObserved):
		return VisibilityObserved, nil
	case string(VisibilityPreseed):
		return VisibilityPreseed, nil
	default:
		return "", fmt.Errorf("unknown phase visibility %q (expected observed|preseed)", value)
	}
}

// Def is one canonical phase.
type Def struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label,omitempty"`
}

// Vocabulary is the ordered list of phases a producer may report.
type Vocabulary []Def

// NewVocabulary builds a vocabulary from ids, deriving labels.
func NewVocabulary(ids ...string) Vocabulary {
	vocab := make(Vocabulary, 0, len(ids))
	for _, id := range ids {
		vocab = append(vocab, Def{ID: id})
	}
	return vocab
}

// index returns the canonical position of id, or -1.
func (v Vocabulary) index(id string) int {
	for i, def := range v {
		if def.ID == id {
			return i
		}
	}
	return -1
}

// label returns the display label for the def at position i.
func (v Vocabulary) label(i int) string {
	if v[i].Label != "" {
		return v[i].Label
	}
	return Humanize(v[i].ID)
}

// Entry is the tracked state of one phase.
type Entry struct {
	ID          string `json:"phaseId"`
	Label       string `json:"label"`
	State       State  `json:"state"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Tracker keeps phase entries in canonical order. Tracker values are
// immutable; every Record method returns an updated copy.
type Tracker struct {
	vocab      Vocabulary
	visibility Visibility
	entries    []Entry
}

// New constructs a tracker, pre-seeding pending entries when requested.
func New(vocab Vocabulary, visibility Visibility) Tracker {
	t := Tracker{vocab: vocab, visibility: visibility}
	if visibility == VisibilityPreseed {
		t.entries = make([]Entry, 0, len(vocab))
		for i, def := range vocab {
			t.entries = append(t.entries, Entry{ID: def.ID, Label: vocab.label(i), State: StatePending})
		}
	}
	return t
}

// Restore rebuilds a tracker around previously recorded entries.
func Restore(vocab Vocabulary, visibility Visibility, entries []Entry) Tracker {
	if len(entries) == 0 {
		return New(vocab, visibility)
	}
	return Tracker{vocab: vocab, visibility: visibility, entries: entries}
}

// RecordStart marks a phase active and updates its description.
func (t Tracker) RecordStart(id, description string) Tracker {
	pos := t.vocab.index(id)
	if pos < 0 {
		return t
	}
	return t.update(id, pos, StateActive, func(entry *Entry, inserted bool) {
		if description != "" {
			entry.Description = description
		}
		if !inserted && entry.State != StateComplete {
			entry.State = StateActive
		}
	})
}

// RecordComplete marks a phase complete, inserting it if it was never started.
func (t Tracker) RecordComplete(id string) Tracker {
	pos := t.vocab.index(id)
	if pos < 0 {
		return t
	}
	return t.update(id, pos, StateComplete, func(entry *Entry, _ bool) {
		entry.State = StateComplete
	})
}

// RecordError marks a phase as failed.
func (t Tracker) RecordError(id, message string) Tracker {
	pos := t.vocab.index(id)
	if pos < 0 {
		return t
	}
	return t.update(id, pos, StateError, func(entry *Entry, _ bool) {
		entry.State = StateError
		if message != "" {
			entry.Error = message
		}
	})
}

// FailActive marks every active phase as failed.
func (t Tracker) FailActive(message string) Tracker {
	next := t
	for _, entry := range t.entries {
		if entry.State == StateActive {
			next = next.RecordError(entry.ID, message)
		}
	}
	return next
}

// CurrentActive returns the first active phase in list order.
func (t Tracker) CurrentActive() (Entry, bool) {
	for _, entry := range t.entries {
		if entry.State == StateActive {
			return entry, true
		}
	}
	return Entry{}, false
}

// AllComplete reports whether at least one phase is listed and every listed
// phase is complete.
func (t Tracker) AllComplete() bool {
	if len(t.entries) == 0 {
		return false
	}
	for _, entry := range t.entries {
		if entry.State != StateComplete {
			return false
		}
	}
	return true
}

// Entries returns a copy of the entries in canonical order.
func (t Tracker) Entries() []Entry {
	if len(t.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// update copies the entries, inserting id at its canonical position when it
// is not present yet, and applies fn to the entry.
func (t Tracker) update(id string, pos int, initial State, fn func(entry *Entry, inserted bool)) Tracker {
	entries := make([]Entry, 0, len(t.entries)+1)
	found := false
	inserted := false
	for _, entry := range t.entries {
		if !found && !inserted && t.vocab.index(entry.ID) > pos {
			entries = append(entries, Entry{ID: id, Label: t.vocab.label(pos), State: initial})
			fn(&entries[len(entries)-1], true)
			inserted = true
		}
		if entry.ID == id {
			fn(&entry, false)
			found = true
		}
		entries = append(entries, entry)
	}
	if !found && !inserted {
		entries = append(entries, Entry{ID: id, Label: t.vocab.label(pos), State: initial})
		fn(&entries[len(entries)-1], true)
	}
	t.entries = entries
	return t
}

// Humanize turns a phase id such as "sql_builder" into "Sql builder".
func Humanize(id string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(id))
	if len(words) == 0 {
		return id
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
