package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfig = `version: 1
server:
  base_url: %q
  token_env: "RUNWATCH_TOKEN"

stream:
  grace_ms: 25
  chunk_bytes: 4096

# Built-in profiles (agent, semantic, import) are always available. Entries
# here override them field by field or add new producers.
profiles:
  - name: agent
    terminal_policy: strict
  - name: import
    delimiter: line
    phase_visibility: preseed
`

// DefaultBaseURL is offered by init when no server is given.
const DefaultBaseURL = "http://localhost:8000/api"

// Scaffold writes the starter config to path, refusing to overwrite.
func Scaffold(path, baseURL string) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("config path %q is a directory", path)
		}
		return fmt.Errorf("config file already exists at %q", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf(defaultConfig, baseURL)), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
