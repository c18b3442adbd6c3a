package models

import "errors"

// Sentinel errors. Adapters wrap these so callers can match with errors.Is.
var (
	ErrStorage            = errors.New("storage error")
	ErrExtraction         = errors.New("extraction error")
	ErrConfig             = errors.New("configuration error")
	ErrEmbedding          = errors.New("embedding error")
	ErrIndex              = errors.New("vector index error")
	ErrGeneration         = errors.New("generation error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTimeout            = errors.New("timed out")
	ErrIndexingInProgress = errors.New("indexing already in progress")
)
