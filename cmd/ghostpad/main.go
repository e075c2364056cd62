// Package main is the entry point for the ghostpad command.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/dshills/ghostpad/internal/app"
	"github.com/dshills/ghostpad/internal/completion"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/settings"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type globalOptions struct {
	configPath   string
	settingsPath string
	logLevel     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ghostpad", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (TOML or YAML)")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.settingsPath, "settings", "", "Path to settings database")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "ghostpad - inline AI completion engine\n\n")
		fmt.Fprintf(stderr, "Usage: ghostpad [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  complete -file F -line L -col C   Suggest a completion at a position\n")
		fmt.Fprintf(stderr, "  settings get|set|delete|list       Manage stored settings\n")
		fmt.Fprintf(stderr, "  version                            Show version information\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  ghostpad settings set ai.baseUrl http://localhost:11434\n")
		fmt.Fprintf(stderr, "  ghostpad settings set ai.apiKey          Prompt for the key\n")
		fmt.Fprintf(stderr, "  ghostpad complete -file main.go -line 12 -col 9\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	switch opts.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	switch rest[0] {
	case "version":
		fmt.Fprintf(stdout, "ghostpad %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	case "complete":
		return runComplete(opts, rest[1:], stdout, stderr)
	case "settings":
		return runSettings(opts, rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}
}

func newApp(opts globalOptions, host editor.Host, stderr io.Writer) (*app.Application, error) {
	return app.New(app.Options{
		ConfigPath:   opts.configPath,
		SettingsPath: opts.settingsPath,
		LogLevel:     opts.logLevel,
		LogOutput:    stderr,
		Host:         host,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runComplete(opts globalOptions, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "File to complete in")
	line := fs.Int("line", 0, "Cursor line (1-based)")
	col := fs.Int("col", 0, "Cursor column in characters (1-based)")
	lang := fs.String("lang", "", "Language id (detected from the file name by default)")
	wait := fs.Bool("wait-retry", false, "After a rejected suggestion, wait for the retry")
	verbose := fs.Bool("v", false, "Print the label and pipeline metrics")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" || *line < 1 || *col < 1 {
		fmt.Fprintf(stderr, "Error: complete needs -file, -line and -col\n")
		return 2
	}

	triggered := make(chan struct{}, 1)
	host := editor.NewMemoryHost()
	host.OnTrigger = func() {
		select {
		case triggered <- struct{}{}:
		default:
		}
	}

	application, err := newApp(opts, host, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	var doc *app.Document
	if *lang != "" {
		content, rerr := os.ReadFile(*file)
		if rerr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", rerr)
			return 1
		}
		doc, err = application.OpenText(*file, *lang, string(content))
	} else {
		doc, err = application.OpenFile(*file)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()
	pos := editor.Position{Line: *line, Column: *col}

	sug, err := application.Complete(ctx, doc, pos)
	var rejected *completion.RejectedError
	if *wait && errors.As(err, &rejected) {
		ai, _ := application.AI(ctx)
		limit := application.Config().Completion().RetryDelay + ai.RequestTimeout
		select {
		case <-triggered:
			sug, err = application.Complete(ctx, doc, pos)
		case <-time.After(limit):
		case <-ctx.Done():
		}
	}

	if *verbose {
		defer printMetrics(stderr, application.Metrics())
	}
	if err != nil {
		// Abstaining is not a failure: print nothing.
		if *verbose {
			fmt.Fprintf(stderr, "no suggestion (%s): %v\n", completion.Reason(err), err)
		}
		if errors.Is(err, app.ErrInvalidPosition) {
			return 1
		}
		return 0
	}

	if *verbose {
		fmt.Fprintf(stderr, "label: %s\n", sug.Label)
	}
	fmt.Fprintln(stdout, sug.Text)
	return 0
}

func printMetrics(w io.Writer, s completion.MetricsSnapshot) {
	fmt.Fprintf(w, "requests=%d accepted=%d rejected=%d retries=%d avg=%v\n",
		s.Requests, s.Accepted, s.Rejected, s.Retries, s.AvgLatency.Round(time.Millisecond))
}

func runSettings(opts globalOptions, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, "Usage: ghostpad settings get KEY | set KEY [VALUE] | delete KEY | list\n")
		return 2
	}

	application, err := newApp(opts, nil, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	switch {
	case args[0] == "list":
		keys, err := application.Settings().List(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, key := range keys {
			v, err := application.GetSetting(ctx, key)
			if err != nil {
				continue
			}
			fmt.Fprintf(stdout, "%s = %s\n", key, display(key, v))
		}
		return 0

	case args[0] == "get" && len(args) == 2:
		v, err := application.GetSetting(ctx, args[1])
		if errors.Is(err, settings.ErrNotFound) {
			return 1
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, display(args[1], v))
		return 0

	case args[0] == "set" && (len(args) == 2 || len(args) == 3):
		var value string
		if len(args) == 3 {
			value = args[2]
		} else {
			value, err = readValue(args[1], stderr)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		if err := application.SetSetting(ctx, args[1], value); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case args[0] == "delete" && len(args) == 2:
		if err := application.DeleteSetting(ctx, args[1]); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	default:
		fmt.Fprintf(stderr, "Error: bad settings command %q\n", strings.Join(args, " "))
		return 2
	}
}

// readValue reads a value from stdin, without echo for secrets typed at a
// terminal.
func readValue(key string, stderr io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		b, err := io.ReadAll(os.Stdin)
		return strings.TrimSpace(string(b)), err
	}

	fmt.Fprintf(stderr, "%s: ", key)
	if def, ok := settings.Lookup(key); ok && def.Secret {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(stderr)
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return strings.TrimSpace(line), err
}

// display formats a setting value, hiding secrets.
func display(key string, v any) string {
	if def, ok := settings.Lookup(key); ok && def.Secret {
		return "********"
	}
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
