package cli

import (
	"fmt"
	"io"
	"strings"

	"runwatch/internal/verbose"
)

// uiModeDecision captures whether to use the live UI.
type uiModeDecision struct {
	useLive bool
	warning string
}

// isTerminal reports whether a writer is a TTY.
var isTerminal = verbose.IsTerminal

// resolveUIMode determines whether to enable the live UI. Verbose logging
// and the live view share the terminal, so verbose forces plain output.
func resolveUIMode(mode string, verboseLogs bool, stdout io.Writer) (uiModeDecision, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = "auto"
	}
	switch normalized {
	case "auto":
		return uiModeDecision{useLive: !verboseLogs && isTerminal(stdout)}, nil
	case "live":
		if verboseLogs {
			return uiModeDecision{warning: "Live UI disabled while --verbose is set; using plain output."}, nil
		}
		if isTerminal(stdout) {
			return uiModeDecision{useLive: true}, nil
		}
		return uiModeDecision{
			warning: "Live UI requested but stdout is not a TTY; falling back to plain output.",
		}, nil
	case "plain":
		return uiModeDecision{}, nil
	default:
		return uiModeDecision{}, fmt.Errorf("invalid ui mode %q (expected auto|live|plain)", mode)
	}
}
