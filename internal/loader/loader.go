// Package loader turns files on disk into ordered pages of text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// ErrUnsupported is returned for file types the loader cannot split into pages.
var ErrUnsupported = errors.New("unsupported file type")

// SupportedExtensions lists file extensions the loader can handle.
var SupportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// IsSupported checks if a file extension is supported.
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Loader splits PDF and text files into pages.
type Loader struct{}

// New returns a page loader.
func New() *Loader { return &Loader{} }

// Load returns the pages of the file at path in document order.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, fmt.Errorf("load %s: %w", path, ErrUnsupported)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var (
		texts []string
		err   error
	)
	if ext == ".pdf" {
		texts, err = pdfPages(path)
	} else {
		texts, err = textPages(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	pages := make([]domain.Page, len(texts))
	for i, t := range texts {
		pages[i] = domain.Page{Index: i, Number: i + 1, Source: path, Text: t}
	}
	return pages, nil
}

// pdfPages keeps one entry per physical page, so page numbers line up with the file.
func pdfPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func textPages(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}
