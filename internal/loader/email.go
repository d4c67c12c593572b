package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"strings"
)

// EmailLoader parses RFC 5322 messages (.eml) and extracts the text/plain
// body plus routing headers as metadata.
type EmailLoader struct{}

func NewEmailLoader() *EmailLoader { return &EmailLoader{} }

func (l *EmailLoader) Extensions() []string { return []string{".eml"} }

func (l *EmailLoader) Load(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to parse email: %w", err)}
	}

	body, err := extractBody(msg)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	// Prepend subject so it is retrievable alongside the body.
	subject := msg.Header.Get("Subject")
	text := body
	if subject != "" {
		text = subject + "\n\n" + body
	}

	text = CleanText(text)
	if text == "" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("email contains no text body")}
	}

	meta := FileMetadata(path)
	meta["subject"] = subject
	meta["from"] = msg.Header.Get("From")
	meta["to"] = msg.Header.Get("To")
	meta["date"] = msg.Header.Get("Date")
	meta["message_id"] = msg.Header.Get("Message-ID")

	return &Result{Text: text, Metadata: meta}, nil
}

// extractBody returns the text/plain content, walking multipart bodies.
func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read email body: %w", err)
		}
		return string(body), nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("failed to parse content type: %w", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read email body: %w", err)
		}
		return string(body), nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("multipart email missing boundary")
	}

	var parts []string
	mr := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read multipart body: %w", err)
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if partType == "text/plain" || partType == "" {
			content, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			parts = append(parts, string(content))
		}
	}

	return strings.Join(parts, "\n\n"), nil
}
