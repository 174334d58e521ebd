package config

import (
	"fmt"

	"runwatch/internal/phase"
	"runwatch/internal/runstate"
	"runwatch/internal/sse"
)

// Built-in profile names.
const (
	ProfileAgent    = "agent"
	ProfileSemantic = "semantic"
	ProfileImport   = "import"
)

// BuiltinProfiles returns the producers known without any configuration.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Name:            ProfileAgent,
			StreamPath:      "messages/{id}/stream",
			StatePath:       "messages/{id}",
			CancelPath:      "messages/{id}/cancel",
			Delimiter:       string(sse.DelimiterBlankLine),
			PhaseVisibility: string(phase.VisibilityObserved),
			TerminalPolicy:  string(runstate.TerminalStrict),
			Phases: []phase.Def{
				{ID: "planner", Label: "Planning"},
				{ID: "navigator", Label: "Exploring schema"},
				{ID: "sql_builder", Label: "Writing SQL"},
				{ID: "executor", Label: "Running query"},
				{ID: "verifier", Label: "Checking results"},
				{ID: "explainer", Label: "Explaining"},
			},
		},
		{
			Name:            ProfileSemantic,
			StreamPath:      "runs/{id}/stream",
			StatePath:       "runs/{id}",
			CancelPath:      "runs/{id}/cancel",
			Delimiter:       string(sse.DelimiterBlankLine),
			PhaseVisibility: string(phase.VisibilityObserved),
			TerminalPolicy:  string(runstate.TerminalStrict),
			Phases: []phase.Def{
				{ID: "discovering", Label: "Discovering tables"},
				{ID: "generating", Label: "Generating models"},
				{ID: "saving", Label: "Saving"},
			},
		},
		{
			Name:            ProfileImport,
			StreamPath:      "imports/{id}/stream",
			StatePath:       "imports/{id}",
			CancelPath:      "imports/{id}/cancel",
			Delimiter:       string(sse.DelimiterLine),
			PhaseVisibility: string(phase.VisibilityPreseed),
			TerminalPolicy:  string(runstate.TerminalStrict),
			Phases: []phase.Def{
				{ID: "parsing", Label: "Parsing file"},
				{ID: "converting", Label: "Converting"},
				{ID: "uploading", Label: "Uploading"},
				{ID: "connecting", Label: "Connecting source"},
			},
		},
	}
}

// Machine builds the reducer configured by the profile.
func (p Profile) Machine() (runstate.Machine, error) {
	visibility, err := phase.ParseVisibility(p.PhaseVisibility)
	if err != nil {
		return runstate.Machine{}, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	policy, err := runstate.ParseTerminalPolicy(p.TerminalPolicy)
	if err != nil {
		return runstate.Machine{}, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return runstate.Machine{
		Vocabulary: phase.Vocabulary(append([]phase.Def(nil), p.Phases...)),
		Visibility: visibility,
		Terminal:   policy,
	}, nil
}

// DecoderOptions returns the framing options configured by the profile.
func (p Profile) DecoderOptions() (sse.Options, error) {
	delimiter, err := sse.ParseDelimiter(p.Delimiter)
	if err != nil {
		return sse.Options{}, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return sse.Options{Delimiter: delimiter}, nil
}
