package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/references"
	"ragchat/internal/server"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
	"ragchat/internal/tui"
)

// ingestStartup indexes the data directory and any files named on the command
// line. A missing data directory is logged, not fatal.
func ingestStartup(ctx context.Context, svc *service.Service, cfg *config.AppConfig, uploads []string, log *slog.Logger) error {
	if _, err := svc.Ingest(ctx, domain.SourcePreprocessed, []string{cfg.Directories.DataDirectory}); err != nil {
		log.Warn("data directory not indexed", "dir", cfg.Directories.DataDirectory, "error", err)
	}
	if len(uploads) > 0 {
		if _, err := svc.Ingest(ctx, domain.SourceUploaded, uploads); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}
	return nil
}

func runChat(ctx context.Context, args []string) error {
	fs, common := newFlagSet("chat")
	logPath := fs.String("log-file", "ragchat.log", "file to write logs to while the UI is running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	f, err := tea.LogToFile(*logPath, "ragchat")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log := common.logger(f)

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := ingestStartup(ctx, svc, cfg, fs.Args(), log); err != nil {
		return err
	}

	m := tui.New(ctx, svc, cfg.Server.PublicURL)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runAsk(ctx context.Context, args []string) error {
	fs, common := newFlagSet("ask")
	source := fs.String("source", string(domain.SourcePreprocessed), "index to ask: preprocessed or uploaded")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	log := common.logger(os.Stderr)
	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := ingestStartup(ctx, svc, cfg, fs.Args(), log); err != nil {
		return err
	}
	return askLoop(ctx, svc, domain.Source(*source), cfg.Server.PublicURL, os.Stdin, os.Stdout)
}

// responder is the part of the service the question loop needs.
type responder interface {
	Respond(ctx context.Context, source domain.Source, history []domain.Turn, message string) (*service.Reply, error)
}

// askLoop reads questions from in until EOF or "q" and prints each answer with
// its references.
func askLoop(ctx context.Context, svc responder, source domain.Source, serverURL string, in io.Reader, out io.Writer) error {
	var history []domain.Turn
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, "Enter your question or press 'q' to exit:")
		if !scanner.Scan() {
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch {
		case q == "":
			continue
		case strings.EqualFold(q, "q"):
			return nil
		}
		reply, err := svc.Respond(ctx, source, history, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n\n", err)
			continue
		}
		history = append(history, domain.Turn{Question: q, Answer: reply.Answer})
		fmt.Fprintf(out, "\n%s\n\n%s", reply.Answer, references.Format(reply.Results, serverURL))
	}
}

func runSummarize(ctx context.Context, args []string) error {
	fs, common := newFlagSet("summarize")
	full := fs.Bool("full", false, "also print the concatenated page summaries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one file to summarize")
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	log := common.logger(os.Stderr)
	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}

	res, err := svc.SummarizePDF(ctx, fs.Arg(0), func(p summarizer.Progress) {
		fmt.Fprintf(os.Stderr, "page %d/%d done\n", p.Done, p.Total)
	})
	if err != nil {
		return err
	}
	printSummary(os.Stdout, res, *full)
	return nil
}

func printSummary(w io.Writer, res *summarizer.Result, full bool) {
	if full {
		fmt.Fprintf(w, "Full summary (%d tokens):\n%s\n\n", res.FullTokens, res.Full)
	}
	fmt.Fprintf(w, "Final summary:\n%s\n", res.Final)
	if res.FailedPages > 0 {
		fmt.Fprintf(w, "\n%d of %d pages could not be summarized.\n", res.FailedPages, res.Pages)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs, common := newFlagSet("serve")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log := common.logger(os.Stderr)
	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(svc, cfg.Directories.DataDirectory, log.With("component", "http")),
		ReadTimeout:  30 * time.Second,
		// Document downloads only; /api/summarize clears its own write deadline.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting document server", "addr", cfg.Server.Addr, "dir", cfg.Directories.DataDirectory)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
