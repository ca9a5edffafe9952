package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"calsync/internal/config"
	appLog "calsync/internal/log"
	"calsync/internal/reconcile"
)

// GlobalOptions are accepted by every command.
type GlobalOptions struct {
	Config    string `long:"config" short:"c" env:"CALSYNC_CONFIG" default:"config.yaml" description:"Path to config file (created with defaults if missing)"`
	Feed      string `long:"feed" env:"CALSYNC_FEED" description:"Feed URL or local path (overrides the config file)"`
	DryRun    bool   `long:"dry-run" description:"Log writes and deletions instead of performing them"`
	LogLevel  string `long:"log-level" env:"CALSYNC_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFormat string `long:"log-format" env:"CALSYNC_LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log format"`
}

// storeFactory builds the calendar and task stores for a config.
type storeFactory func(ctx context.Context, cfg *config.Config) (reconcile.EventStore, reconcile.TaskStore, error)

type app struct {
	ctx    context.Context
	opts   GlobalOptions
	stdin  io.Reader
	stdout io.Writer
	stores storeFactory
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		ctx:    ctx,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stores: googleStores,
	}
	code := a.run(os.Args[1:])
	stop()
	os.Exit(code)
}

// run parses args and executes the selected command. It returns the
// process exit code.
func (a *app) run(args []string) int {
	parser := a.newParser()
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(a.stdout, ferr.Message)
			return 0
		}
		appLog.Error("calsync failed", err)
		return 1
	}
	return 0
}

func (a *app) newParser() *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.AddCommand("sync", "Sync the feed once",
		"Fetches the feed and creates or updates one event or task per entry.", &syncCommand{app: a})
	parser.AddCommand("watch", "Sync on a schedule",
		"Runs sync on the configured cron schedule and optionally serves a status API.", &watchCommand{app: a})
	parser.AddCommand("clear", "Delete upcoming events and tasks",
		"Deletes every upcoming event of the calendar and every task of the task list.", &clearCommand{app: a})
	parser.AddCommand("preview", "Show what a sync would do",
		"Fetches and classifies the feed without calling Google.", &previewCommand{app: a})
	parser.AddCommand("auth", "Authorize access to Google",
		"Prints the consent URL and stores the token for the pasted code.", &authCommand{app: a})

	// Logging is configured after flags are parsed and before any command runs.
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if err := a.setupLogging(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}
	return parser
}

func (a *app) setupLogging() error {
	lvl, err := appLog.ParseLevel(a.opts.LogLevel)
	if err != nil {
		return err
	}
	appLog.SetLevel(lvl)
	return appLog.SetFormat(a.opts.LogFormat)
}
