package indexer

import (
	"fmt"

	"github.com/hyperjump/mensetsu/internal/models"
)

// Split cuts text into windows of maxLength characters (runes), each starting
// maxLength-overlap characters after the previous one. The last window is the one that
// reaches the end of text. Empty text yields no chunks. overlap must be smaller than
// maxLength.
func Split(text string, maxLength, overlap int) ([]string, error) {
	if err := validateWindow(maxLength, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}, nil
	}
	step := maxLength - overlap
	chunks := make([]string, 0, ChunkCount(len(runes), maxLength, overlap))
	for start := 0; ; start += step {
		end := start + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// ChunkCount returns how many chunks Split produces for a text of length characters.
func ChunkCount(length, maxLength, overlap int) int {
	if length <= 0 {
		return 0
	}
	if length <= maxLength {
		return 1
	}
	step := maxLength - overlap
	return (length - overlap + step - 1) / step
}

func validateWindow(maxLength, overlap int) error {
	if maxLength <= 0 {
		return fmt.Errorf("%w: chunk max length must be positive, got %d", models.ErrConfig, maxLength)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrConfig, overlap)
	}
	if overlap >= maxLength {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than max length %d", models.ErrConfig, overlap, maxLength)
	}
	return nil
}

// Chunker splits resume text into overlapping character windows.
type Chunker struct {
	maxLength int
	overlap   int
}

// NewChunker creates a chunker with the given window size and overlap (in characters).
func NewChunker(maxLength, overlap int) (*Chunker, error) {
	if err := validateWindow(maxLength, overlap); err != nil {
		return nil, err
	}
	return &Chunker{maxLength: maxLength, overlap: overlap}, nil
}

// MaxLength returns the window size.
func (c *Chunker) MaxLength() int { return c.maxLength }

// Overlap returns the number of characters shared by neighbouring chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks splits text into Chunks owned by parentKey, numbered from 0.
func (c *Chunker) Chunks(parentKey, text string) ([]*models.Chunk, error) {
	parts, err := Split(text, c.maxLength, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]*models.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = &models.Chunk{ParentKey: parentKey, SequenceIndex: i, Text: p}
	}
	return chunks, nil
}
