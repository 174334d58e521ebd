package cli

import (
	"flag"
	"fmt"
	"io"

	"runwatch/internal/config"
)

// runValidate builds the handler for the validate command.
func runValidate(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: search for .runwatch/config.yml)")
		if code, ok := parseFlags(cmd, flags, args, 0, stdout, stderr); !ok {
			return code
		}

		resolved, err := config.ResolvePath(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed:\n%v\n", err)
			return ExitError
		}
		cfg, err := config.Load(resolved)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed:\n%s\n", err.Error())
			return ExitError
		}

		fmt.Fprintln(stdout, "Config OK")
		for _, profile := range cfg.Profiles {
			fmt.Fprintf(stdout, "  %-10s %s (%s, %s, %d phases)\n",
				profile.Name, profile.StreamPath, profile.Delimiter, profile.PhaseVisibility, len(profile.Phases))
		}
		return ExitOK
	}
}
