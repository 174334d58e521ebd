package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Process exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Command is one entry of the command table.
type Command struct {
	Name    string
	Summary string
	Usage   []string
	Run     func(args []string, stdout, stderr io.Writer) int
}

// Run dispatches args to a command and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return ExitUsage
	}
	if isHelpArg(args[0]) {
		printUsage(stdout)
		return ExitOK
	}

	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return ExitUsage
	}

	return cmd.Run(args[1:], stdout, stderr)
}

func findCommand(name string) *Command {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  runwatch <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintln(w, "\nUse \"runwatch <command> --help\" for more information.")
}

func printCommandUsage(cmd *Command, w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	for _, line := range cmd.Usage {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if cmd.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cmd.Summary)
	}
}

// parseFlags parses args and handles help and stray positional arguments.
// ok is false when the command should return code immediately.
func parseFlags(cmd *Command, flags *flag.FlagSet, args []string, positional int, stdout, stderr io.Writer) (code int, ok bool) {
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printCommandUsage(cmd, stdout)
			return ExitOK, false
		}
		fmt.Fprintf(stderr, "invalid arguments: %v\n", err)
		printCommandUsage(cmd, stderr)
		return ExitUsage, false
	}
	if flags.NArg() != positional {
		if flags.NArg() > positional {
			fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(flags.Args()[positional:], " "))
		} else {
			fmt.Fprintf(stderr, "expected %d argument(s), got %d\n", positional, flags.NArg())
		}
		printCommandUsage(cmd, stderr)
		return ExitUsage, false
	}
	return ExitOK, true
}

func command(name, summary string, usage []string, runner func(cmd *Command) func(args []string, stdout, stderr io.Writer) int) *Command {
	cmd := &Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
	}
	cmd.Run = runner(cmd)
	return cmd
}

var commands = []*Command{
	command("init", "Scaffold .runwatch/config.yml", []string{
		"runwatch init [--config <path>] [--base-url <url>] [--yes]",
	}, runInit),
	command("validate", "Validate .runwatch/config.yml", []string{
		"runwatch validate [--config <path>]",
	}, runValidate),
	command("watch", "Stream a run and reconstruct its state", []string{
		"runwatch watch [--ui auto|live|plain] [--body <json>] [--cancel-remote] <profile> <run-id>",
	}, runWatch),
	command("replay", "Fold a captured event stream into a snapshot", []string{
		"runwatch replay [--chunk <bytes>] [--json] <profile> <file>",
	}, runReplay),
	command("status", "Show the persisted state of a run", []string{
		"runwatch status [--json] <profile> <run-id>",
	}, runStatus),
	command("cancel", "Ask the server to stop a run", []string{
		"runwatch cancel <profile> <run-id>",
	}, runCancel),
}
