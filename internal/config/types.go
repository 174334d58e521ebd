package config

import (
	"time"

	"runwatch/internal/phase"
)

// Config is the parsed .runwatch/config.yml.
type Config struct {
	Version  int       `yaml:"version"`
	Server   Server    `yaml:"server"`
	Stream   Stream    `yaml:"stream"`
	Profiles []Profile `yaml:"profiles"`
}

// Server locates the run server and its credentials.
type Server struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`
}

// Stream tunes the read loop shared by every profile.
type Stream struct {
	GraceMs    int `yaml:"grace_ms"`
	ChunkBytes int `yaml:"chunk_bytes"`
}

// Grace converts GraceMs for stream.Options; a negative value disables the
// delay and zero keeps the controller default.
func (s Stream) Grace() time.Duration {
	if s.GraceMs < 0 {
		return -1
	}
	return time.Duration(s.GraceMs) * time.Millisecond
}

// Profile describes one stream producer: where its runs live and how its
// events are framed and folded.
type Profile struct {
	Name            string      `yaml:"name"`
	StreamPath      string      `yaml:"stream_path"`
	StatePath       string      `yaml:"state_path"`
	CancelPath      string      `yaml:"cancel_path"`
	Delimiter       string      `yaml:"delimiter"`
	PhaseVisibility string      `yaml:"phase_visibility"`
	TerminalPolicy  string      `yaml:"terminal_policy"`
	Phases          []phase.Def `yaml:"phases"`
}

// Profile returns the profile called name.
func (c Config) Profile(name string) (Profile, bool) {
	for _, profile := range c.Profiles {
		if profile.Name == name {
			return profile, true
		}
	}
	return Profile{}, false
}

// ProfileNames lists configured profiles in file order.
func (c Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for _, profile := range c.Profiles {
		names = append(names, profile.Name)
	}
	return names
}
