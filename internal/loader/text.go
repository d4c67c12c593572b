package loader

import (
	"context"
	"fmt"
	"os"
)

// TextLoader handles plain text and markdown files.
type TextLoader struct{}

func NewTextLoader() *TextLoader { return &TextLoader{} }

func (l *TextLoader) Extensions() []string { return []string{".txt", ".md", ".log"} }

func (l *TextLoader) Load(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	text := CleanText(string(content))
	if text == "" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("file contains no text")}
	}

	return &Result{Text: text, Metadata: FileMetadata(path)}, nil
}
