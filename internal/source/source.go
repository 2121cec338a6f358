// Package source loads the raw book text from disk.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"histrag/internal/domain"
	"histrag/internal/logger"
)

// Load returns the text of a .txt, .md or .pdf file. PDF pages are separated
// by "— N —" marker lines so the chunker can attribute page numbers.
func Load(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: source file %s not found", domain.ErrValidation, path)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", domain.ErrValidation, path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return string(data), nil
	case ".pdf":
		return loadPDF(path)
	default:
		return "", fmt.Errorf("%w: unsupported source format %q", domain.ErrValidation, ext)
	}
}

func loadPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", domain.ErrValidation, err)
	}
	defer f.Close()

	var b strings.Builder
	extracted := 0
	pages := rdr.NumPage()
	for i := 1; i <= pages; i++ {
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("pdf page %d: %v", i, err)
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			extracted++
		}
		fmt.Fprintf(&b, "— %d —\n%s\n\n", i, text)
	}
	if extracted == 0 {
		return "", fmt.Errorf("%w: no text extracted from %s", domain.ErrValidation, path)
	}
	logger.Debug("extracted text from %d of %d pdf pages in %s", extracted, pages, path)
	return b.String(), nil
}
