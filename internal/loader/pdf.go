package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"document-rag-platform/internal/logger"
)

// maxPDFSize caps in-memory extraction to avoid OOM on huge files.
const maxPDFSize = 200 << 20

// PDFLoader extracts plain text from PDF files page by page.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader { return &PDFLoader{} }

func (l *PDFLoader) Extensions() []string { return []string{".pdf"} }

func (l *PDFLoader) Load(ctx context.Context, path string) (*Result, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= 0 {
			return nil, ctx.Err()
		}
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	if stat.Size() > maxPDFSize {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("pdf too large for in-memory extraction")}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("missing PDF magic bytes")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to create PDF reader: %w", err)}
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract text from page", "page", i, "file", path, "err", err)
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	extracted := CleanText(textBuilder.String())
	if extracted == "" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("no text extracted")}
	}

	meta := FileMetadata(path)
	meta["pages"] = pages

	return &Result{Text: extracted, Pages: pages, Metadata: meta}, nil
}
