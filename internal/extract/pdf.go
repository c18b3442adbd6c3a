package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF joins the plain text of every non-empty page with newlines.
func extractPDF(content []byte) (text string, err error) {
	if !IsPDF(content) {
		return "", fmt.Errorf("open PDF: missing %q header", pdfMagic)
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("open PDF: malformed document: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, doc.NumPage())
	for n := 1; n <= doc.NumPage(); n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read PDF page %d: %w", n, err)
		}
		pages = append(pages, s)
	}
	return strings.Join(pages, "\n"), nil
}
