package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"runwatch/internal/client"
	"runwatch/internal/runstate"
	"runwatch/internal/stream"
	"runwatch/internal/ui/live"
)

// remoteCancelTimeout bounds the server-side cancel request after a stop.
const remoteCancelTimeout = 10 * time.Second

// startLive launches the live view; tests replace it.
var startLive = func(stdout io.Writer, opts live.Options) liveView {
	return live.Start(stdout, opts)
}

// liveView is the part of live.Controller the watch command drives.
type liveView interface {
	Publish(runstate.Snapshot)
	Close()
	Done() <-chan struct{}
	Wait()
}

// runWatch builds the handler for the watch command.
func runWatch(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		configPath := flags.String("config", "", "Path to config file (default: search for .runwatch/config.yml)")
		uiMode := flags.String("ui", "auto", "UI mode: auto|live|plain")
		verboseLogs := flags.Bool("verbose", false, "Log stream activity to stderr")
		noColor := flags.Bool("no-color", false, "Disable colored output")
		bodyJSON := flags.String("body", "", "JSON body for the stream request (default: {})")
		cancelRemote := flags.Bool("cancel-remote", false, "Also cancel the run on the server when interrupted")
		jsonOut := flags.Bool("json", false, "Print the final snapshot as JSON")
		timeout := flags.Duration("timeout", 0, "Give up after this long (0 = no limit)")
		if code, ok := parseFlags(cmd, flags, args, 2, stdout, stderr); !ok {
			return code
		}
		profileName, runID := flags.Arg(0), flags.Arg(1)

		decision, err := resolveUIMode(*uiMode, *verboseLogs, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitUsage
		}
		if decision.warning != "" {
			fmt.Fprintln(stderr, decision.warning)
		}
		var body any
		if strings.TrimSpace(*bodyJSON) != "" {
			if err := json.Unmarshal([]byte(*bodyJSON), &body); err != nil {
				fmt.Fprintf(stderr, "invalid --body: %v\n", err)
				return ExitUsage
			}
		}

		cfg, err := loadConfig(*configPath, false)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		profile, err := lookupProfile(cfg, profileName)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitUsage
		}
		c, err := newClient(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to create client: %v\n", err)
			return ExitError
		}
		opts, err := controllerOptions(cfg, profile, runID, newLogger(*verboseLogs, stderr, *noColor))
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitError
		}
		if profile.StatePath != "" {
			opts.Reconciler = c.Reconciler(client.ExpandPath(profile.StatePath, runID))
		}
		controller := stream.New(opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if *timeout > 0 {
			var cancelTimeout context.CancelFunc
			ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
			defer cancelTimeout()
		}

		var view liveView
		var unsubscribe func()
		if decision.useLive {
			view = startLive(stdout, live.Options{
				NoColor:     *noColor || os.Getenv("NO_COLOR") != "",
				Profile:     profile.Name,
				OnInterrupt: cancel,
			})
			unsubscribe = controller.Subscribe(view.Publish)
		} else {
			unsubscribe = controller.Subscribe(newPlainPrinter(stdout).Publish)
		}

		controller.Start(ctx, c.Source(client.ExpandPath(profile.StreamPath, runID), body))
		streamDone := make(chan struct{})
		if view != nil {
			go func() {
				select {
				case <-view.Done():
					cancel()
				case <-streamDone:
				}
			}()
		}
		controller.Wait()
		close(streamDone)
		unsubscribe()
		if view != nil {
			view.Close()
			view.Wait()
		}

		final := controller.Snapshot()
		if final.Stopped() && *cancelRemote {
			requestRemoteCancel(c, profile.CancelPath, runID, stdout, stderr)
		}
		if *jsonOut {
			if err := writeJSON(stdout, final); err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
				return ExitError
			}
		} else {
			printSummary(stdout, final)
		}
		if unfinished(final) {
			fmt.Fprintf(stderr, "Stream closed before run %s finished (active: %s)\n", runID, strings.Join(activePhases(final), ", "))
		}
		return exitCodeFor(final)
	}
}

// requestRemoteCancel asks the server to stop runID after a local stop.
func requestRemoteCancel(c *client.Client, template, runID string, stdout, stderr io.Writer) {
	if template == "" {
		fmt.Fprintln(stderr, "Profile has no cancel_path; run left running on the server.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteCancelTimeout)
	defer cancel()
	if err := c.CancelRun(ctx, client.ExpandPath(template, runID)); err != nil {
		fmt.Fprintf(stderr, "Remote cancel failed: %v\n", err)
		return
	}
	fmt.Fprintf(stdout, "Cancellation requested for %s\n", runID)
}
