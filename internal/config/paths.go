package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config file location.
const (
	ConfigDirName  = ".runwatch"
	ConfigFileName = "config.yml"
	// EnvConfigPath names a config file and skips the upward search.
	EnvConfigPath = "RUNWATCH_CONFIG"
)

// ErrConfigNotFound reports that no config file exists up the directory tree.
var ErrConfigNotFound = errors.New("config not found")

// ConfigPath returns the config file path under a project root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigDirName, ConfigFileName)
}

// ResolvePath picks the config file: an explicit path first, then
// $RUNWATCH_CONFIG, then the nearest .runwatch/config.yml above the working
// directory.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if candidate = strings.TrimSpace(candidate); candidate == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return abs, nil
	}
	return FindConfigPath("")
}

// FindConfigPath searches startDir and its parents for .runwatch/config.yml.
// An empty startDir means the working directory.
func FindConfigPath(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		startDir = wd
	}
	start, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}

	for dir := start; ; dir = filepath.Dir(dir) {
		path := ConfigPath(dir)
		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			return "", fmt.Errorf("config path %q is a directory", path)
		case err == nil:
			return path, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat config path %q: %w", path, err)
		}
		if info, err := os.Stat(filepath.Dir(path)); err == nil && info.IsDir() {
			return "", fmt.Errorf("found %q but %s is missing", filepath.Dir(path), ConfigFileName)
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("%w: no %s in %s or its parents", ErrConfigNotFound, filepath.Join(ConfigDirName, ConfigFileName), start)
		}
	}
}
