// Command icalmerge merges remote and virtual iCalendar feeds into
// filtered, transformed calendars and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"icalmerge/internal/config"
	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/merge"
	"icalmerge/internal/server"
	"icalmerge/internal/watch"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	bind       string
	port       int
	days       int
}

func main() {
	flags, args := parseFlags()

	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "help":
		printUsage()
		return
	case "version":
		fmt.Println("icalmerge", version)
		return
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override both document and environment values.
	if flags.bind != "" {
		conf.Bind = flags.bind
	}
	if flags.port > 0 {
		conf.Port = flags.port
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	merger := merge.New(ics.NewFetcher(conf.FetchTimeout.Duration))

	switch command {
	case "serve":
		os.Exit(runServe(conf, flags.configPath, merger))
	case "events":
		os.Exit(runEvents(conf, flags.days, merger, args))
	case "emit":
		os.Exit(runEmit(conf, merger, args))
	default:
		fmt.Fprintf(os.Stderr, "icalmerge: unknown command %q\n", command)
		fmt.Fprintln(os.Stderr, "Run 'icalmerge help' for usage.")
		os.Exit(1)
	}
}

// runServe starts the config watcher and the HTTP server and blocks until
// a shutdown signal arrives.
func runServe(conf *config.Config, configPath string, merger *merge.Merger) int {
	appLog.Info("icalmerge starting",
		"version", version,
		"listen", conf.ListenAddr(),
		"calendars", len(conf.Calendars),
		"poll_interval", conf.PollInterval.String(),
		"fetch_timeout", conf.FetchTimeout.String(),
	)

	ctx, cancel := signalContext()
	defer cancel()

	store := config.NewStore(conf, configPath)

	watcher := watch.New(store, conf.PollInterval.Duration)
	if err := watcher.Start(); err != nil {
		appLog.Error("failed to start config watcher", err)
		return 1
	}
	defer watcher.Stop()

	srv := server.New(store, merger)
	if err := srv.Run(ctx, conf.ListenAddr()); err != nil {
		appLog.Error("http server failed", err)
		return 1
	}

	appLog.Info("icalmerge exiting")
	return 0
}

// runEvents resolves one calendar and prints its upcoming occurrences,
// with recurring events expanded into concrete instances.
func runEvents(conf *config.Config, days int, merger *merge.Merger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: icalmerge events <calendar-id>")
		return 1
	}
	id := args[0]
	if days <= 0 {
		days = 7
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := merger.Merge(ctx, conf, id)
	if err != nil {
		appLog.Error("merge failed", err, "calendar", id)
		return 1
	}
	for _, srcErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", srcErr)
	}

	now := time.Now()
	occurrences, err := ics.ExpandOccurrences(result.Events, ics.ExpandOptions{
		DisplayLocation: time.Local,
		RangeStart:      now,
		RangeEnd:        now.AddDate(0, 0, days),
	})
	if err != nil {
		appLog.Error("expand failed", err, "calendar", id)
		return 1
	}

	if len(occurrences) == 0 {
		fmt.Printf("no events in the next %d days\n", days)
		return 0
	}
	for _, occ := range occurrences {
		var when string
		if occ.AllDay {
			when = occ.Start.Format("2006-01-02") + " (all day)"
		} else {
			when = occ.Start.Format("2006-01-02 15:04") + "-" + occ.End.Format("15:04")
		}
		fmt.Printf("%-28s  %s", when, occ.Summary)
		if occ.Location != "" {
			fmt.Printf(" @ %s", occ.Location)
		}
		fmt.Println()
	}
	return 0
}

// runEmit resolves one calendar and writes the merged document to stdout.
func runEmit(conf *config.Config, merger *merge.Merger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: icalmerge emit <calendar-id>")
		return 1
	}
	id := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	result, err := merger.Merge(ctx, conf, id)
	if err != nil {
		appLog.Error("merge failed", err, "calendar", id)
		return 1
	}
	for _, srcErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", srcErr)
	}

	fmt.Print(ics.BuildCalendar(id, result.Events).Serialize())
	return 0
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	return ctx, cancel
}

func parseFlags() (flagConfig, []string) {
	var cfg flagConfig

	defaultConfig := os.Getenv(config.EnvConfigPath)
	if defaultConfig == "" {
		defaultConfig = "config.json"
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file (json or yaml)")
	flag.StringVar(&cfg.bind, "bind", "", "Bind address (overrides config if set)")
	flag.IntVar(&cfg.port, "port", 0, "Listen port (overrides config if set)")
	flag.IntVar(&cfg.days, "days", 7, "Preview window in days for the events command")
	flag.Usage = printUsage

	flag.Parse()

	return cfg, flag.Args()
}

func printUsage() {
	fmt.Fprint(os.Stderr, `icalmerge merges remote and virtual iCalendar feeds into filtered,
transformed calendars.

Usage:
  icalmerge [flags] [command]

Commands:
  serve                 Start the HTTP server and config watcher (default)
  events <calendar-id>  Print upcoming occurrences for one calendar
  emit <calendar-id>    Write the merged calendar document to stdout
  version               Print the version
  help                  Show this help

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, `
Environment:
  ICAL_MERGE_CONFIG         Config file path (flag -config wins)
  ICAL_MERGE_BIND           Bind address override
  ICAL_MERGE_PORT           Port override
  ICAL_MERGE_LOG_LEVEL      Log level (debug, info, warn, error)
  ICAL_MERGE_POLL_INTERVAL  Config poll interval (e.g. 2s)
  ICAL_MERGE_FETCH_TIMEOUT  Per-source fetch timeout (e.g. 30s)
`)
}
