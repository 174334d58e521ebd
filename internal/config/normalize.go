package config

import "strings"

// DefaultTokenEnv is read for the bearer token when server.token_env is unset.
const DefaultTokenEnv = "RUNWATCH_TOKEN"

// Normalize trims fields, fills defaults and merges built-in profiles. A
// configured profile that shares a built-in name inherits every field it
// leaves empty; built-ins the file does not mention are appended.
func Normalize(cfg *Config) {
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	cfg.Server.TokenEnv = strings.TrimSpace(cfg.Server.TokenEnv)
	if cfg.Server.TokenEnv == "" {
		cfg.Server.TokenEnv = DefaultTokenEnv
	}

	builtins := map[string]Profile{}
	for _, profile := range BuiltinProfiles() {
		builtins[profile.Name] = profile
	}
	seen := map[string]struct{}{}
	for i := range cfg.Profiles {
		profile := &cfg.Profiles[i]
		profile.Name = strings.TrimSpace(profile.Name)
		if base, ok := builtins[profile.Name]; ok {
			inherit(profile, base)
		}
		if profile.Delimiter == "" {
			profile.Delimiter = "blank_line"
		}
		if profile.PhaseVisibility == "" {
			profile.PhaseVisibility = "observed"
		}
		if profile.TerminalPolicy == "" {
			profile.TerminalPolicy = "strict"
		}
		for j := range profile.Phases {
			profile.Phases[j].ID = strings.TrimSpace(profile.Phases[j].ID)
		}
		seen[profile.Name] = struct{}{}
	}
	for _, profile := range BuiltinProfiles() {
		if _, ok := seen[profile.Name]; !ok {
			cfg.Profiles = append(cfg.Profiles, profile)
		}
	}
}

func inherit(profile *Profile, base Profile) {
	if profile.StreamPath == "" {
		profile.StreamPath = base.StreamPath
	}
	if profile.StatePath == "" {
		profile.StatePath = base.StatePath
	}
	if profile.CancelPath == "" {
		profile.CancelPath = base.CancelPath
	}
	if profile.Delimiter == "" {
		profile.Delimiter = base.Delimiter
	}
	if profile.PhaseVisibility == "" {
		profile.PhaseVisibility = base.PhaseVisibility
	}
	if profile.TerminalPolicy == "" {
		profile.TerminalPolicy = base.TerminalPolicy
	}
	if len(profile.Phases) == 0 {
		profile.Phases = base.Phases
	}
}
