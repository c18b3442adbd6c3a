package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of chunks retrieved to ground an answer.
const DefaultTopK = 7

// MaxTopK caps caller-supplied TopK values.
const MaxTopK = 50

// Filter restricts a vector query to one owner and optionally one resume.
type Filter struct {
	OwnerID   string `json:"owner_id,omitempty"`
	SourceKey string `json:"source_key,omitempty"`
}

// Matches reports whether meta satisfies the filter. A nil filter matches everything.
func (f *Filter) Matches(meta ChunkMetadata) bool {
	if f == nil {
		return true
	}
	if f.OwnerID != "" && meta.OwnerID != f.OwnerID {
		return false
	}
	if f.SourceKey != "" && meta.SourceKey != f.SourceKey {
		return false
	}
	return true
}

// Match is one vector query hit.
type Match struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// QueryResult is the ordered set of matches for one query.
type QueryResult struct {
	Query   string   `json:"query"`
	Matches []*Match `json:"matches"`
}

// AskRequest is a question about the caller's resumes.
type AskRequest struct {
	Question string `json:"question"`
	ResumeID string `json:"resume_id,omitempty"`
	TopK     int    `json:"top_k,omitempty"`

	// Set by the caller after authentication and ownership checks.
	OwnerID   string `json:"-"`
	SourceKey string `json:"-"`
}

// Validate ensures the question is present and normalizes TopK.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	return nil
}

// Answer is the generated reply to an AskRequest.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Sources  int    `json:"sources"`
	Degraded bool   `json:"degraded,omitempty"`
}
