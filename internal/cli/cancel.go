package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"runwatch/internal/client"
)

// runCancel builds the handler for the cancel command.
func runCancel(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: search for .runwatch/config.yml)")
		if code, ok := parseFlags(cmd, flags, args, 2, stdout, stderr); !ok {
			return code
		}
		profileName, runID := flags.Arg(0), flags.Arg(1)

		c, profile, code, ok := serverCommand(*configPath, profileName, stderr)
		if !ok {
			return code
		}
		template := profile.CancelPath
		if template == "" {
			fmt.Fprintf(stderr, "Profile %q has no cancel_path\n", profile.Name)
			return ExitError
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := c.CancelRun(ctx, client.ExpandPath(template, runID)); err != nil {
			fmt.Fprintf(stderr, "Cancel failed: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Cancellation requested for %s\n", runID)
		return ExitOK
	}
}
