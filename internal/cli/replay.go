package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"runwatch/internal/stream"
)

// runReplay builds the handler for the replay command.
func runReplay(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: search, else built-in profiles)")
		chunk := flags.Int("chunk", 0, "Bytes per read (default: stream.chunk_bytes)")
		runID := flags.String("run-id", "", "Run id to report (default: file name)")
		jsonOut := flags.Bool("json", false, "Print the final snapshot as JSON")
		quiet := flags.Bool("quiet", false, "Only print the final result")
		verboseLogs := flags.Bool("verbose", false, "Log stream activity to stderr")
		noColor := flags.Bool("no-color", false, "Disable colored output")
		if code, ok := parseFlags(cmd, flags, args, 2, stdout, stderr); !ok {
			return code
		}
		if *chunk < 0 {
			fmt.Fprintln(stderr, "--chunk must be >= 0")
			return ExitUsage
		}
		profileName, path := flags.Arg(0), flags.Arg(1)

		cfg, err := loadConfig(*configPath, true)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		profile, err := lookupProfile(cfg, profileName)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitUsage
		}
		if info, err := os.Stat(path); err != nil {
			fmt.Fprintf(stderr, "Replay failed: %v\n", err)
			return ExitError
		} else if info.IsDir() {
			fmt.Fprintf(stderr, "Replay failed: %q is a directory\n", path)
			return ExitError
		}

		id := strings.TrimSpace(*runID)
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		opts, err := controllerOptions(cfg, profile, id, newLogger(*verboseLogs, stderr, *noColor))
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitError
		}
		opts.Grace = -1
		if *chunk > 0 {
			opts.ChunkSize = *chunk
		}
		controller := stream.New(opts)
		if !*quiet && !*jsonOut {
			controller.Subscribe(newPlainPrinter(stdout).Publish)
		}
		controller.Start(context.Background(), stream.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		}))
		controller.Wait()

		final := controller.Snapshot()
		if *jsonOut {
			if err := writeJSON(stdout, final); err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
				return ExitError
			}
		} else {
			printSummary(stdout, final)
		}
		if unfinished(final) {
			fmt.Fprintln(stderr, "Capture ends before the run finished")
		}
		return exitCodeFor(final)
	}
}
