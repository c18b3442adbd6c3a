// Package extract provides text extraction from resume documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/mensetsu/internal/models"
)

// ErrNoText is returned when a document parses but carries no extractable text,
// e.g. a scanned PDF without a text layer.
var ErrNoText = errors.New("document contains no extractable text")

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// Extractor extracts plain text from resume documents.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractBytes extracts text from content based on the given extension (with leading dot).
// When ext is empty the format is sniffed from the content. PDF pages are concatenated in
// page order. Every failure wraps models.ErrExtraction; a document without text also wraps
// ErrNoText.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if ext == "" && IsPDF(content) {
		ext = ".pdf"
	}
	var (
		text string
		err  error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, ErrNoText)
	}
	return text, nil
}

// IsPDF reports whether content starts with the PDF header.
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// DetectExt returns the extension ExtractBytes should use for content. Bytes carrying
// the PDF header are always ".pdf"; otherwise the first name with an extension decides.
func DetectExt(content []byte, names ...string) string {
	if IsPDF(content) {
		return ".pdf"
	}
	for _, n := range names {
		if ext := strings.ToLower(filepath.Ext(n)); ext != "" {
			return ext
		}
	}
	return ""
}
