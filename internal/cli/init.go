package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"runwatch/internal/config"
)

// initInput allows tests to override stdin for init prompts.
var initInput io.Reader = os.Stdin

// runInit builds the handler for the init command.
func runInit(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: ./.runwatch/config.yml)")
		baseURL := flags.String("base-url", "", "Run server base URL (default: prompt)")
		yes := flags.Bool("yes", false, "Accept defaults without prompting")
		if code, ok := parseFlags(cmd, flags, args, 0, stdout, stderr); !ok {
			return code
		}

		target := strings.TrimSpace(*configPath)
		if target == "" {
			wd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(stderr, "Init failed: %v\n", err)
				return ExitError
			}
			target = config.ConfigPath(wd)
		}
		target, err := filepath.Abs(target)
		if err != nil {
			fmt.Fprintf(stderr, "Init failed: %v\n", err)
			return ExitError
		}
		if _, err := os.Stat(target); err == nil {
			fmt.Fprintf(stderr, "Init failed: config file already exists at %q\n", target)
			return ExitError
		}

		server := strings.TrimSpace(*baseURL)
		if server != "" {
			if err := config.CheckBaseURL(server); err != nil {
				fmt.Fprintf(stderr, "--base-url %v\n", err)
				return ExitUsage
			}
		}
		if !*yes {
			in := initInput
			if in == nil {
				in = os.Stdin
			}
			ask := newPrompter(in, stdout)
			confirm, err := ask.confirm(fmt.Sprintf("Initialize runwatch config at %s?", target), true)
			if err != nil {
				fmt.Fprintf(stderr, "Init failed: %v\n", err)
				return ExitError
			}
			if !confirm {
				fmt.Fprintln(stderr, "Init cancelled.")
				return ExitError
			}
			if server == "" {
				server, err = ask.ask("Run server base URL", config.DefaultBaseURL, config.CheckBaseURL)
				if err != nil {
					fmt.Fprintf(stderr, "Init failed: %v\n", err)
					return ExitError
				}
			}
		}

		if err := config.Scaffold(target, server); err != nil {
			fmt.Fprintf(stderr, "Init failed: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Wrote %s\n", target)
		return ExitOK
	}
}
