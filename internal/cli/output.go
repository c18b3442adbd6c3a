// Package cli formats API responses for the mensetsu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat maps a --format flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q (use text or json)", models.ErrInvalidInput, s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer to w in the given format.
func WriteAnswer(w io.Writer, a *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "\nQ: %s\n\n%s\n", a.Question, strings.TrimSpace(a.Answer))
	if a.Degraded {
		fmt.Fprintln(w, "\n(answer unavailable; see server logs)")
	} else {
		fmt.Fprintf(w, "\n(%d source chunks)\n", a.Sources)
	}
	return nil
}

// WriteAnswerWithSources writes an answer followed by the chunks it was grounded on.
func WriteAnswerWithSources(w io.Writer, a *models.Answer, sources []*models.Match, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []*models.Match{}
		}
		return writeJSON(w, map[string]interface{}{"answer": a, "sources": sources})
	}
	if err := WriteAnswer(w, a, format); err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources\n%s\n", rule)
	for i, m := range sources {
		fmt.Fprintf(w, "%d. %s #%d (score %.3f)\n", i+1, m.Metadata.OriginalName, m.Metadata.ChunkIndex, m.Score)
		fmt.Fprintf(w, "   %s\n", utils.Truncate(strings.Join(strings.Fields(m.Metadata.GroundingText()), " "), 160))
	}
	return nil
}

// WriteResume writes one resume record to w in the given format.
func WriteResume(w io.Writer, r *models.Resume, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	writeResumeText(w, r)
	return nil
}

// WriteResumes writes a list of resume records to w in the given format.
func WriteResumes(w io.Writer, list []*models.Resume, format OutputFormat) error {
	if format == OutputJSON {
		if list == nil {
			list = []*models.Resume{}
		}
		return writeJSON(w, map[string]interface{}{"resumes": list})
	}
	fmt.Fprintf(w, "\n%d resume(s)\n\n", len(list))
	for _, r := range list {
		writeResumeText(w, r)
	}
	return nil
}

func writeResumeText(w io.Writer, r *models.Resume) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s  %s\n", r.ID, r.OriginalName)
	fmt.Fprintf(w, "Status: %s | Chunks: %d | Size: %s\n", r.Status, r.ChunksIndexed, FormatBytes(r.FileSize))
	fmt.Fprintf(w, "Uploaded: %s\n", r.UploadedAt.Local().Format("2006-01-02 15:04:05"))
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", utils.Truncate(r.Error, 200))
	}
	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Summary, 300))
	}
	if r.Analysis != nil {
		fmt.Fprintf(w, "Match score: %.1f/10\n", r.Analysis.Score)
	}
	fmt.Fprintln(w)
}

// WriteStatus writes the /api/v1/status payload to w in the given format.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintln(w, "Mensetsu status")
	fmt.Fprintf(w, "  Resumes: %v\n", status["resumes"])
	if by, ok := status["by_status"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(by))
		for k := range by {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %-9s %v\n", k+":", by[k])
		}
	}
	if v, ok := status["vectors"]; ok {
		fmt.Fprintf(w, "  Vectors: %v\n", v)
	}
	if v, ok := status["disk_usage_bytes"].(float64); ok {
		fmt.Fprintf(w, "  Disk usage: %s\n", FormatBytes(int64(v)))
	}
	if cfg, ok := status["config"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "  Config:")
		for _, k := range keys {
			fmt.Fprintf(w, "    %s: %v\n", k, cfg[k])
		}
	}
	return nil
}

// FormatBytes renders n as a human-readable size.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
