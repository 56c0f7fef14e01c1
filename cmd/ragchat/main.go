package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ragchat/internal/config"
)

const usage = `Usage: ragchat [command] [flags] [args]

Commands:
  chat       interactive chat over the data directory (default); args are uploaded
  ask        plain terminal question loop
  summarize  summarize a PDF page by page: ragchat summarize <file>
  serve      serve the data directory and the summarize API

Common flags:
  --config    path to YAML config (default ./config.yaml, then ~/.config/ragchat/config.yaml)
  --log-json  log as JSON instead of text
`

var commands = map[string]func(ctx context.Context, args []string) error{
	"chat":      runChat,
	"ask":       runAsk,
	"summarize": runSummarize,
	"serve":     runServe,
}

func main() {
	_ = godotenv.Load()

	name, args := "chat", os.Args[1:]
	if len(args) > 0 {
		if _, ok := commands[args[0]]; ok {
			name, args = args[0], args[1:]
		} else if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			fmt.Print(usage)
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands[name](ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "ragchat %s: %v\n", name, err)
		os.Exit(1)
	}
}

// commonFlags registers the flags every subcommand accepts.
type commonFlags struct {
	configPath string
	logJSON    bool
	verbose    bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "path to YAML config file")
	fs.BoolVar(&c.logJSON, "log-json", false, "log as JSON")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
	return fs, c
}

func (c *commonFlags) loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if c.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(c.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *commonFlags) logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.verbose {
		opts.Level = slog.LevelDebug
	}
	if c.logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
