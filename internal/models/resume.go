// Package models defines core data structures for resumes, chunks, queries, and answers.
package models

import (
	"fmt"
	"time"
)

// Status is the indexing lifecycle state of a resume.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
	// StatusAnalyzed is set after a job description analysis has been stored.
	StatusAnalyzed Status = "analyzed"
)

// Terminal reports whether no further indexing transition follows s.
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed || s == StatusAnalyzed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusIndexing, StatusIndexed, StatusFailed, StatusAnalyzed:
		return true
	}
	return false
}

// Resume is an uploaded resume together with its index record.
type Resume struct {
	ID            string     `json:"id" db:"id"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	SourceKey     string     `json:"source_key" db:"source_key"`
	OriginalName  string     `json:"original_name" db:"original_name"`
	FileSize      int64      `json:"file_size" db:"file_size"`
	Status        Status     `json:"status" db:"status"`
	ChunksIndexed int        `json:"chunks_indexed" db:"chunks_indexed"`
	Error         string     `json:"error,omitempty" db:"error"`
	Summary       string     `json:"summary,omitempty" db:"summary"`
	Analysis      *Analysis  `json:"analysis,omitempty" db:"analysis"`
	UploadedAt    time.Time  `json:"uploaded_at" db:"uploaded_at"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty" db:"last_indexed_at"`
}

// Authorize returns ErrForbidden unless ownerID owns r.
func (r *Resume) Authorize(ownerID string) error {
	if ownerID == "" || r.OwnerID != ownerID {
		return fmt.Errorf("%w: resume %s belongs to another user", ErrForbidden, r.ID)
	}
	return nil
}

// StatusUpdate is a single write to a resume's index record.
type StatusUpdate struct {
	Status        Status
	ChunksIndexed int
	Error         string
}

// IndexResult is the outcome of one indexing attempt.
type IndexResult struct {
	SourceKey     string `json:"source_key"`
	Status        Status `json:"status"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Error         string `json:"error,omitempty"`
}

// Analysis is a resume scored against a job description.
type Analysis struct {
	Score          float64   `json:"score"`
	Strengths      []string  `json:"strengths"`
	Improvements   []string  `json:"improvements"`
	MissingSkills  []string  `json:"missing_skills"`
	Summary        string    `json:"summary"`
	JobDescription string    `json:"job_description"`
	AnalyzedAt     time.Time `json:"analyzed_at"`

	// Resources holds learning material per missing skill when a resource index is configured.
	Resources []SkillResources `json:"resources,omitempty"`
}

// SkillResources lists learning resources found for one missing skill.
type SkillResources struct {
	Skill     string   `json:"skill"`
	Resources []string `json:"resources"`
}

// InterviewTurn is one message of a mock interview transcript.
type InterviewTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// InterviewSummary is coaching feedback on an interview transcript.
type InterviewSummary struct {
	Summary string   `json:"summary"`
	Tips    []string `json:"tips"`
}
