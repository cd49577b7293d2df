package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for content that is neither PDF, HTML nor text.
var ErrUnsupported = errors.New("unsupported content type; expected PDF, HTML or text")

// ExtractText converts a fetched body into text for prompt context. kind is
// one of "pdf", "html" or "text".
func ExtractText(data []byte, name, contentType string, maxPages int) (text, kind string, err error) {
	ctype := strings.ToLower(contentType)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	if strings.HasPrefix(string(data), "%PDF-") || ext == "pdf" || strings.Contains(ctype, "pdf") {
		text, err = PDFToText(data, maxPages)
		return text, "pdf", err
	}

	looksHTML := ext == "html" || ext == "htm" || strings.Contains(ctype, "html")
	if !looksHTML {
		head := strings.ToLower(string(data[:min(len(data), 512)]))
		looksHTML = strings.Contains(head, "<html") || strings.Contains(head, "<body") || strings.Contains(head, "<!doctype html")
	}
	if looksHTML {
		text, err = HTMLToText(string(data))
		return text, "html", err
	}

	switch ext {
	case "txt", "md", "markdown", "csv", "json", "log", "yaml", "yml":
		return strings.TrimSpace(string(data)), "text", nil
	}
	if ctype == "" || strings.Contains(ctype, "text/") || strings.Contains(ctype, "json") || strings.Contains(ctype, "yaml") || strings.Contains(ctype, "csv") {
		return strings.TrimSpace(string(data)), "text", nil
	}
	return "", "", fmt.Errorf("%w (%s)", ErrUnsupported, contentType)
}
