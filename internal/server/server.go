// Package server exposes the document directory and the PDF summarizer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ragchat/internal/loader"
	"ragchat/internal/summarizer"
)

// Summarizer is the subset of the service the HTTP API needs.
type Summarizer interface {
	SummarizePDF(ctx context.Context, path string, onProgress func(summarizer.Progress)) (*summarizer.Result, error)
}

// Server serves the files of the data directory, so reference links resolve,
// and runs summaries on request.
type Server struct {
	router  chi.Router
	svc     Summarizer
	dataDir string
	log     *slog.Logger
}

// New creates the HTTP handler for dataDir.
func New(svc Summarizer, dataDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{svc: svc, dataDir: dataDir, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/docs/{name}", s.handleDocument)
	r.Post("/api/summarize", s.handleSummarize)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleDocument serves one file from the data directory by base name.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(chi.URLParam(r, "name"))
	if !ok {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

type summarizeRequest struct {
	File string `json:"file"`
}

type summarizeResponse struct {
	File              string `json:"file"`
	Pages             int    `json:"pages"`
	PageBudget        int    `json:"page_budget"`
	FailedPages       int    `json:"failed_pages"`
	FullSummary       string `json:"full_summary"`
	FullSummaryTokens int    `json:"full_summary_tokens"`
	FinalSummary      string `json:"final_summary"`
	Degraded          bool   `json:"degraded"`
	Error             string `json:"error,omitempty"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.File) == "" {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	path, ok := s.resolve(req.File)
	if !ok {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	// A summary makes one model call per page, which can outlast the server's
	// write timeout. The run is bounded by the request context instead.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.log.Warn("clear write deadline", "error", err)
	}

	res, err := s.svc.SummarizePDF(r.Context(), path, nil)
	switch {
	case err == nil:
	case errors.Is(err, loader.ErrUnsupported):
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	case errors.Is(err, os.ErrNotExist):
		jsonError(w, "document not found", http.StatusNotFound)
		return
	default:
		s.log.Error("summarize failed", "file", req.File, "error", err)
		jsonError(w, "summarize failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := summarizeResponse{
		File:              filepath.Base(path),
		Pages:             res.Pages,
		PageBudget:        res.PageBudget,
		FailedPages:       res.FailedPages,
		FullSummary:       res.Full,
		FullSummaryTokens: res.FullTokens,
		FinalSummary:      res.Final,
		Degraded:          res.Degraded,
	}
	if res.FinalErr != nil {
		resp.Error = res.FinalErr.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// resolve maps a client supplied name to a regular file directly inside the
// data directory. Anything with path components is rejected.
func (s *Server) resolve(name string) (string, bool) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	path := filepath.Join(s.dataDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
