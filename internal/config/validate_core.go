package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a normalized config and reports every problem at once.
func Validate(cfg *Config) error {
	collector := &issueCollector{}

	if cfg.Version == 0 {
		collector.add("version", "is required")
	} else if cfg.Version != 1 {
		collector.add("version", fmt.Sprintf("unsupported version %d", cfg.Version))
	}

	validateServer(cfg.Server, collector.add)
	validateStream(cfg.Stream, collector.add)
	validateProfiles(cfg.Profiles, collector.add)

	return collector.result()
}

func validateServer(server Server, add issueAdder) {
	if server.BaseURL == "" {
		add("server.base_url", "is required")
	} else if err := CheckBaseURL(server.BaseURL); err != nil {
		add("server.base_url", err.Error())
	}
	if strings.ContainsAny(server.TokenEnv, " =") {
		add("server.token_env", fmt.Sprintf("invalid variable name %q", server.TokenEnv))
	}
}

func validateStream(stream Stream, add issueAdder) {
	if stream.GraceMs < -1 {
		add("stream.grace_ms", "must be >= -1 (-1 disables the grace period)")
	}
	if stream.ChunkBytes < 0 {
		add("stream.chunk_bytes", "must be >= 0")
	}
}

// CheckBaseURL rejects anything but an absolute http(s) URL with a host.
func CheckBaseURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	return nil
}
