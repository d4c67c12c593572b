package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLLoader strips markup and script noise from saved HTML pages.
type HTMLLoader struct{}

func NewHTMLLoader() *HTMLLoader { return &HTMLLoader{} }

func (l *HTMLLoader) Extensions() []string { return []string{".html", ".htm"} }

func (l *HTMLLoader) Load(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	doc.Find("script, style, noscript, nav, footer").Remove()

	var textBuilder strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	})

	// Fallback for pages without block structure.
	if textBuilder.Len() == 0 {
		textBuilder.WriteString(doc.Find("body").Text())
	}

	text := CleanText(textBuilder.String())
	if text == "" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("page contains no text")}
	}

	meta := FileMetadata(path)
	if title := strings.TrimSpace(doc.Find("title").Text()); title != "" {
		meta["title"] = title
	}

	return &Result{Text: text, Metadata: meta}, nil
}
