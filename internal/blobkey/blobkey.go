// Package blobkey builds deterministic object-storage keys for uploaded resumes.
package blobkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const prefix = "resumes/"

// SourceKey returns the storage key for a resume uploaded by owner at the given time:
// resumes/{owner}/{unixMillis}_{name}. Both owner and name are sanitized so the key
// never contains path separators or dot segments.
func SourceKey(owner, originalName string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d_%s", prefix, Sanitize(owner), at.UnixMilli(), Sanitize(filepath.Base(originalName)))
}

// OwnerPrefix is the key prefix shared by all of owner's resumes.
func OwnerPrefix(owner string) string {
	return prefix + Sanitize(owner) + "/"
}

// Owned reports whether key was issued for owner.
func Owned(key, owner string) bool {
	return strings.HasPrefix(key, OwnerPrefix(owner))
}

// Sanitize replaces anything other than letters, digits, '.', '-' and '_' with '_'
// and strips leading dots.
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

// FileFingerprint returns a stable id for the given absolute path. The inbox watcher uses
// it to remember which files it already uploaded.
func FileFingerprint(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return "file:" + hex.EncodeToString(hash[:])
}
