package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PreviewLength is the number of characters kept in ChunkMetadata.TextPreview.
const PreviewLength = 1000

// Chunk is one contiguous segment of a resume's extracted text.
type Chunk struct {
	ParentKey     string    `json:"parent_key"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"-"`
}

// ChunkID returns the deterministic vector id for chunk i of parentKey.
func ChunkID(parentKey string, i int) string {
	return fmt.Sprintf("%s-chunk-%d", parentKey, i)
}

// ID returns the chunk's vector id.
func (c *Chunk) ID() string {
	return ChunkID(c.ParentKey, c.SequenceIndex)
}

// ChunkIDPrefix is the id prefix shared by every chunk of parentKey.
func ChunkIDPrefix(parentKey string) string {
	return parentKey + "-chunk-"
}

// ChunkMetadata is the payload stored next to each vector.
type ChunkMetadata struct {
	SourceKey    string `json:"source_key"`
	OriginalName string `json:"original_name"`
	OwnerID      string `json:"owner_id,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
	TextPreview  string `json:"text_preview"`
	Text         string `json:"text"`

	// Set on learning resource entries rather than resume chunks.
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// NewChunkMetadata builds the payload for chunk c of resume r.
func NewChunkMetadata(r *Resume, c *Chunk) ChunkMetadata {
	return ChunkMetadata{
		SourceKey:    r.SourceKey,
		OriginalName: r.OriginalName,
		OwnerID:      r.OwnerID,
		ChunkIndex:   c.SequenceIndex,
		TextPreview:  Preview(c.Text, PreviewLength),
		Text:         c.Text,
	}
}

// Preview returns the first n characters (runes) of s.
func Preview(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ResourceLabel returns the title, URL or text of a resource entry, whichever is set first.
func (m ChunkMetadata) ResourceLabel() string {
	for _, v := range []string{m.Title, m.URL, m.Text} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// GroundingText returns the text to use as retrieval context, falling back to the preview.
func (m ChunkMetadata) GroundingText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.TextPreview
}
