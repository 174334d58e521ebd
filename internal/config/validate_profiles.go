package config

import (
	"fmt"
	"strings"

	"runwatch/internal/phase"
	"runwatch/internal/runstate"
	"runwatch/internal/sse"
)

const idPlaceholder = "{id}"

func validateProfiles(profiles []Profile, add issueAdder) {
	if len(profiles) == 0 {
		add("profiles", "at least one profile is required")
	}
	names := map[string]struct{}{}
	for i, profile := range profiles {
		at := add.under(fmt.Sprintf("profiles[%d]", i))
		if profile.Name == "" {
			at("name", "is required")
		} else if _, exists := names[profile.Name]; exists {
			add("profiles.name", fmt.Sprintf("duplicate name %q", profile.Name))
		} else {
			names[profile.Name] = struct{}{}
		}

		if strings.TrimSpace(profile.StreamPath) == "" {
			at("stream_path", "is required")
		} else {
			validateTemplate("stream_path", profile.StreamPath, at)
		}
		if profile.StatePath != "" {
			validateTemplate("state_path", profile.StatePath, at)
		}
		if profile.CancelPath != "" {
			validateTemplate("cancel_path", profile.CancelPath, at)
		}

		if _, err := sse.ParseDelimiter(profile.Delimiter); err != nil {
			at("delimiter", err.Error())
		}
		visibility, err := phase.ParseVisibility(profile.PhaseVisibility)
		if err != nil {
			at("phase_visibility", err.Error())
		}
		if _, err := runstate.ParseTerminalPolicy(profile.TerminalPolicy); err != nil {
			at("terminal_policy", err.Error())
		}
		validatePhases(profile.Phases, visibility, at)
	}
}

func validateTemplate(field, template string, add issueAdder) {
	if !strings.Contains(template, idPlaceholder) {
		add(field, fmt.Sprintf("must contain the %s placeholder", idPlaceholder))
	}
}

func validatePhases(phases []phase.Def, visibility phase.Visibility, add issueAdder) {
	if len(phases) == 0 {
		if visibility == phase.VisibilityPreseed {
			add("phases", "preseed visibility needs at least one phase")
		}
		return
	}
	ids := map[string]struct{}{}
	for i, def := range phases {
		field := fmt.Sprintf("phases[%d].id", i)
		if def.ID == "" {
			add(field, "is required")
			continue
		}
		if _, exists := ids[def.ID]; exists {
			add(field, fmt.Sprintf("duplicate phase %q", def.ID))
			continue
		}
		ids[def.ID] = struct{}{}
	}
}
