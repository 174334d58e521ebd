package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"runwatch/internal/client"
	"runwatch/internal/config"
)

// requestTimeout bounds one-shot REST calls.
const requestTimeout = 30 * time.Second

// runStatus builds the handler for the status command.
func runStatus(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: search for .runwatch/config.yml)")
		jsonOut := flags.Bool("json", false, "Print the run state as JSON")
		if code, ok := parseFlags(cmd, flags, args, 2, stdout, stderr); !ok {
			return code
		}
		profileName, runID := flags.Arg(0), flags.Arg(1)

		c, profile, code, ok := serverCommand(*configPath, profileName, stderr)
		if !ok {
			return code
		}
		template := profile.StatePath
		if template == "" {
			fmt.Fprintf(stderr, "Profile %q has no state_path\n", profile.Name)
			return ExitError
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		state, err := c.FetchRunState(ctx, client.ExpandPath(template, runID))
		if err != nil {
			fmt.Fprintf(stderr, "Status failed: %v\n", err)
			return ExitError
		}

		if *jsonOut {
			if err := writeJSON(stdout, state); err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
				return ExitError
			}
			return ExitOK
		}
		fmt.Fprintf(stdout, "Run %s: %s\n", runID, state.Status)
		if state.Error != "" {
			fmt.Fprintf(stdout, "Error: %s\n", state.Error)
		}
		if state.DurationMs != nil {
			fmt.Fprintf(stdout, "Duration: %dms\n", *state.DurationMs)
		}
		return ExitOK
	}
}

// serverCommand loads config, resolves the profile and builds the client for
// a one-shot REST command.
func serverCommand(configPath, profileName string, stderr io.Writer) (*client.Client, config.Profile, int, bool) {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return nil, config.Profile{}, ExitError, false
	}
	profile, err := lookupProfile(cfg, profileName)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return nil, config.Profile{}, ExitUsage, false
	}
	c, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create client: %v\n", err)
		return nil, config.Profile{}, ExitError, false
	}
	return c, profile, ExitOK, true
}
