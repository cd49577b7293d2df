package tools

import (
	"bytes"
	"fmt"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
)

// PDFToText extracts the plain text of up to maxPages pages (0 means all).
func PDFToText(data []byte, maxPages int) (string, error) {
	r, err := pdfx.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}
	var out strings.Builder
	for i := 1; i <= maxPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			fmt.Fprintf(&out, "--- Page %d ---\n%s\n\n", i, t)
		}
	}
	return strings.TrimSpace(out.String()), nil
}
