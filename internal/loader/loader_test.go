package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRegistrySelectsByExtension(t *testing.T) {
	r := NewRegistry()
	cases := map[string]bool{
		".pdf":  true,
		".txt":  true,
		".md":   true,
		".eml":  true,
		".xlsx": true,
		".html": true,
		".bin":  false,
		".exe":  false,
	}
	for ext, want := range cases {
		if got := r.Supports(ext); got != want {
			t.Errorf("Supports(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	// Unknown extension and nothing to sniff.
	_, err := r.For(filepath.Join(t.TempDir(), "missing.xyz"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !IsTerminal(err) {
		t.Error("ErrUnsupportedFormat must be terminal")
	}
}

func TestTextLoader(t *testing.T) {
	r := NewRegistry()
	path := writeFile(t, "notes.txt", "Line one.\n\n\n\nLine   two with   gaps.")

	result, err := r.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if result.Text != "Line one.\n\nLine two with gaps." {
		t.Errorf("unexpected cleaned text: %q", result.Text)
	}
	if result.Metadata["file_extension"] != ".txt" {
		t.Errorf("missing extension metadata: %v", result.Metadata)
	}
}

func TestTextLoaderEmptyFile(t *testing.T) {
	r := NewRegistry()
	path := writeFile(t, "empty.txt", "   \n\t  ")

	_, err := r.Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for whitespace-only file")
	}
	if !IsTerminal(err) {
		t.Errorf("empty-file error should be terminal, got %v", err)
	}
}

func TestEmailLoaderPlain(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Quarterly report\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"\r\n" +
		"Attached are the quarterly numbers.\r\n"
	path := writeFile(t, "report.eml", raw)

	result, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.HasPrefix(result.Text, "Quarterly report") {
		t.Errorf("subject should lead the text: %q", result.Text)
	}
	if !strings.Contains(result.Text, "quarterly numbers") {
		t.Errorf("body missing: %q", result.Text)
	}
	if result.Metadata["from"] != "alice@example.com" {
		t.Errorf("from header not captured: %v", result.Metadata)
	}
}

func TestEmailLoaderMultipart(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"Subject: Mixed message\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Plain text part here.\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>HTML part here.</p>\r\n" +
		"--XYZ--\r\n"
	path := writeFile(t, "mixed.eml", raw)

	result, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.Contains(result.Text, "Plain text part here.") {
		t.Errorf("text/plain part missing: %q", result.Text)
	}
	if strings.Contains(result.Text, "HTML part") {
		t.Errorf("html part should be skipped: %q", result.Text)
	}
}

func TestHTMLLoaderStripsBoilerplate(t *testing.T) {
	html := `<html><head><title>Docs</title>
<script>var tracked = true;</script>
<style>body { color: red; }</style></head>
<body><nav>Navigation links</nav>
<h1>Heading</h1><p>Real paragraph content.</p>
<footer>Copyright notice</footer></body></html>`
	path := writeFile(t, "page.html", html)

	result, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.Contains(result.Text, "Real paragraph content.") {
		t.Errorf("paragraph missing: %q", result.Text)
	}
	for _, junk := range []string{"tracked", "color: red", "Navigation links", "Copyright notice"} {
		if strings.Contains(result.Text, junk) {
			t.Errorf("boilerplate %q leaked into text", junk)
		}
	}
	if result.Metadata["title"] != "Docs" {
		t.Errorf("title not captured: %v", result.Metadata)
	}
}

func TestSniffFallback(t *testing.T) {
	// A misnamed HTML file resolves via content sniffing.
	path := writeFile(t, "page.data123", "<html><body><p>Sniffed content.</p></body></html>")
	result, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.Contains(result.Text, "Sniffed content.") {
		t.Errorf("sniffed HTML not extracted: %q", result.Text)
	}
}

func TestPDFLoaderRejectsNonPDF(t *testing.T) {
	path := writeFile(t, "fake.pdf", "this is not a pdf at all")
	_, err := NewRegistry().Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for bogus pdf")
	}
	if !IsTerminal(err) {
		t.Errorf("corrupt file error should be terminal, got %v", err)
	}
}

func TestCleanText(t *testing.T) {
	in := "a\tb   c\n\n\n\nd\x00e\x07f"
	got := CleanText(in)
	if strings.ContainsAny(got, "\x00\x07") {
		t.Errorf("control characters survived: %q", got)
	}
	if strings.Contains(got, "   ") {
		t.Errorf("space runs survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("newline runs survived: %q", got)
	}
	if CleanText("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestIsTerminalClassification(t *testing.T) {
	if !IsTerminal(ErrUnsupportedFormat) {
		t.Error("ErrUnsupportedFormat must be terminal")
	}
	if !IsTerminal(&ExtractionError{Path: "x", Err: errors.New("corrupt")}) {
		t.Error("ExtractionError must be terminal")
	}
	if IsTerminal(errors.New("network blip")) {
		t.Error("arbitrary errors are not terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil is not terminal")
	}
}
