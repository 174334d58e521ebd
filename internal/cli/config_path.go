package cli

import (
	"errors"
	"fmt"
	"strings"

	"runwatch/internal/config"
)

// loadConfig loads the config file. With optional set, a missing file
// yields the built-in profiles instead of an error.
func loadConfig(configPath string, optional bool) (config.Config, error) {
	resolved, err := config.ResolvePath(configPath)
	if err != nil {
		if optional && strings.TrimSpace(configPath) == "" && errors.Is(err, config.ErrConfigNotFound) {
			return config.Default(), nil
		}
		return config.Config{}, err
	}
	return config.Load(resolved)
}

// lookupProfile finds name in cfg or lists the alternatives.
func lookupProfile(cfg config.Config, name string) (config.Profile, error) {
	profile, ok := cfg.Profile(name)
	if !ok {
		return config.Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(cfg.ProfileNames(), ", "))
	}
	return profile, nil
}
