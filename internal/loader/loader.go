package loader

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Result contains extracted plain text plus structural metadata.
type Result struct {
	Text     string
	Pages    int
	Metadata map[string]interface{}
}

// Loader extracts text from one family of file formats. Loaders are pure
// transforms; they never touch the stores. Extraction failures are terminal
// for the file, not retried.
type Loader interface {
	Extensions() []string
	Load(ctx context.Context, path string) (*Result, error)
}

// Registry selects a loader by file extension, falling back to content
// sniffing for files with a missing or misleading extension.
type Registry struct {
	byExt map[string]Loader
}

// NewRegistry creates a registry with all built-in loaders registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Loader)}
	r.Register(NewPDFLoader())
	r.Register(NewTextLoader())
	r.Register(NewEmailLoader())
	r.Register(NewExcelLoader())
	r.Register(NewHTMLLoader())
	return r
}

// Register adds a loader for each of its extensions.
func (r *Registry) Register(l Loader) {
	for _, ext := range l.Extensions() {
		r.byExt[strings.ToLower(ext)] = l
	}
}

// Supports reports whether a loader is registered for the extension.
// Upload validation uses it before the file hits disk; files without an
// extension are resolved later by sniffing.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// For returns the loader responsible for the given file.
func (r *Registry) For(path string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := r.byExt[ext]; ok {
		return l, nil
	}

	// Extension unknown: sniff the leading bytes.
	if ext := sniffExtension(path); ext != "" {
		if l, ok := r.byExt[ext]; ok {
			return l, nil
		}
	}

	return nil, ErrUnsupportedFormat
}

// Load picks the right loader and runs it.
func (r *Registry) Load(ctx context.Context, path string) (*Result, error) {
	l, err := r.For(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}

// sniffExtension maps leading file bytes to a registered extension.
func sniffExtension(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil || n == 0 {
		return ""
	}
	header = header[:n]

	switch {
	case len(header) >= 4 && string(header[:4]) == "%PDF":
		return ".pdf"
	case len(header) >= 4 && header[0] == 0x50 && header[1] == 0x4B: // zip container (xlsx)
		return ".xlsx"
	case strings.Contains(strings.ToLower(string(header)), "<html"):
		return ".html"
	case strings.HasPrefix(string(header), "From:") || strings.Contains(string(header), "\nSubject:"):
		return ".eml"
	default:
		return ".txt"
	}
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanText normalizes whitespace and strips control characters so the
// chunker sees consistent paragraph boundaries regardless of source format.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 32 {
			if r != '�' {
				b.WriteRune(r)
			}
		}
	}

	cleaned := spaceRuns.ReplaceAllString(b.String(), " ")
	cleaned = newlineRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// FileMetadata returns basic file facts shared by all loaders.
func FileMetadata(path string) map[string]interface{} {
	meta := map[string]interface{}{
		"filename":       filepath.Base(path),
		"file_extension": strings.ToLower(filepath.Ext(path)),
	}
	if info, err := os.Stat(path); err == nil {
		meta["file_size"] = info.Size()
	}
	return meta
}
