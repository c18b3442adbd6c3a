// Package analysis summarizes resumes for recruiters and scores them against job
// descriptions.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/embedding"
	"github.com/hyperjump/mensetsu/internal/extract"
	"github.com/hyperjump/mensetsu/internal/generate"
	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/storage"
	"github.com/hyperjump/mensetsu/internal/vector"
)

// DefaultResourceTopK is how many resources are looked up per missing skill.
const DefaultResourceTopK = 7

// interviewerName labels assistant turns in interview transcripts.
const interviewerName = "Alex"

// TextExtractor converts document bytes to plain text.
type TextExtractor interface {
	ExtractBytes(content []byte, ext string) (string, error)
}

// Analyzer generates summaries and job fit analyses and stores them on the record.
type Analyzer struct {
	records   storage.RecordStore
	blobs     storage.BlobStore
	extractor TextExtractor
	generator generate.Generator
	resources *resourceLookup
	now       func() time.Time
	logger    *zap.Logger
}

type resourceLookup struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	topK     int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithResources enables learning resource lookup for missing skills. Skills are embedded
// with embedder and matched against index, which must hold vectors of the same model.
func WithResources(embedder embedding.Embedder, index vector.VectorIndex, topK int) Option {
	return func(a *Analyzer) {
		if topK <= 0 {
			topK = DefaultResourceTopK
		}
		a.resources = &resourceLookup{embedder: embedder, index: index, topK: topK}
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(records storage.RecordStore, blobs storage.BlobStore, extractor TextExtractor, generator generate.Generator, opts ...Option) *Analyzer {
	a := &Analyzer{
		records:   records,
		blobs:     blobs,
		extractor: extractor,
		generator: generator,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) owned(ctx context.Context, ownerID, id string) (*models.Resume, error) {
	r, err := a.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Authorize(ownerID); err != nil {
		return nil, err
	}
	return r, nil
}

// Summarize writes a recruiter summary of resume id and stores it on the record.
func (a *Analyzer) Summarize(ctx context.Context, ownerID, id string) (string, error) {
	r, err := a.owned(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	return a.summarize(ctx, r)
}

func (a *Analyzer) summarize(ctx context.Context, r *models.Resume) (string, error) {
	data, err := a.blobs.Get(ctx, r.SourceKey)
	if err != nil {
		return "", fmt.Errorf("load resume %s: %w", r.ID, err)
	}
	text, err := a.extractor.ExtractBytes(data, extract.DetectExt(data, r.OriginalName, r.SourceKey))
	if err != nil {
		return "", err
	}
	summary, err := a.generator.Generate(ctx, SummaryPrompt(text))
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if err := a.records.UpdateSummary(ctx, r.ID, summary); err != nil {
		return "", err
	}
	a.logger.Debug("resume summarized", zap.String("resume_id", r.ID))
	return summary, nil
}

// Analyze scores resume id against jobDescription. The resume is summarized first
// when no summary is stored yet. The result is stored and the record becomes analyzed.
func (a *Analyzer) Analyze(ctx context.Context, ownerID, id, jobDescription string) (*models.Analysis, error) {
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, fmt.Errorf("%w: job description cannot be empty", models.ErrInvalidInput)
	}
	r, err := a.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	summary := r.Summary
	if summary == "" {
		if summary, err = a.summarize(ctx, r); err != nil {
			return nil, err
		}
	}
	reply, err := a.generator.Generate(ctx, AnalysisPrompt(summary, jobDescription))
	if err != nil {
		return nil, err
	}
	analysis, err := ParseAnalysis(reply)
	if err != nil {
		return nil, err
	}
	analysis.Resources = a.findResources(ctx, analysis.MissingSkills)
	analysis.JobDescription = jobDescription
	analysis.AnalyzedAt = a.now().UTC()
	if err := a.records.UpdateAnalysis(ctx, r.ID, analysis); err != nil {
		return nil, err
	}
	a.logger.Debug("resume analyzed", zap.String("resume_id", r.ID), zap.Float64("score", analysis.Score))
	return analysis, nil
}

// findResources queries the resource index once per missing skill. A failed lookup is
// logged and leaves that skill without resources.
func (a *Analyzer) findResources(ctx context.Context, skills []string) []models.SkillResources {
	if a.resources == nil || len(skills) == 0 {
		return nil
	}
	out := make([]models.SkillResources, 0, len(skills))
	for _, skill := range skills {
		found := models.SkillResources{Skill: skill, Resources: []string{}}
		vec, err := a.resources.embedder.Embed(ctx, skill)
		if err == nil {
			var matches []*models.Match
			matches, err = a.resources.index.Query(ctx, vec, a.resources.topK, nil)
			for _, m := range matches {
				if label := m.Metadata.ResourceLabel(); label != "" {
					found.Resources = append(found.Resources, label)
				}
			}
		}
		if err != nil {
			a.logger.Warn("resource lookup failed", zap.String("skill", skill), zap.Error(err))
		}
		out = append(out, found)
	}
	return out
}

// SummarizeInterview returns coaching feedback on a mock interview transcript, judged
// against jobDescription. Turns without text are ignored.
func (a *Analyzer) SummarizeInterview(ctx context.Context, transcript []models.InterviewTurn, jobDescription string) (*models.InterviewSummary, error) {
	turns := make([]models.InterviewTurn, 0, len(transcript))
	for _, t := range transcript {
		if strings.TrimSpace(t.Text) != "" {
			turns = append(turns, t)
		}
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: transcript cannot be empty", models.ErrInvalidInput)
	}
	reply, err := a.generator.Generate(ctx, InterviewPrompt(turns, strings.TrimSpace(jobDescription)))
	if err != nil {
		return nil, err
	}
	return ParseInterviewSummary(reply)
}

// SummaryPrompt asks for a recruiter facing summary of resumeText.
func SummaryPrompt(resumeText string) string {
	return "Summarize this resume for a recruiter:\n\n" + resumeText
}

// AnalysisPrompt asks for a JSON job fit analysis.
func AnalysisPrompt(summary, jobDescription string) string {
	return `You are a career coach AI. Given the following resume summary and job description, do the following:
1. Score the resume for this job (out of 10).
2. List strengths ("Great:").
3. List improvements ("Improvements:").
4. List missing skills (as a JSON array).
5. Write a 2-3 sentence summary for the resume card.

Resume Summary:
` + summary + `

Job Description:
` + jobDescription + `

Respond in JSON with keys: score, strengths, improvements, missingSkills, summary.`
}

// InterviewPrompt asks for a JSON performance summary and improvement tips. Assistant
// turns are attributed to the interviewer, every other role to the candidate.
func InterviewPrompt(transcript []models.InterviewTurn, jobDescription string) string {
	lines := make([]string, 0, len(transcript))
	for _, t := range transcript {
		speaker := "Candidate"
		if t.Role == "assistant" {
			speaker = interviewerName
		}
		lines = append(lines, speaker+": "+strings.TrimSpace(t.Text))
	}
	return `You are an expert interview coach. Given the following job description and interview transcript, provide:
1. A concise summary of the candidate's performance (2-3 sentences)
2. Actionable tips for improvement (bullet points)

Job Description:
` + jobDescription + `

Transcript:
` + strings.Join(lines, "\n") + `

Respond in JSON with keys: summary, tips.`
}

type rawInterviewSummary struct {
	Summary string          `json:"summary"`
	Tips    json.RawMessage `json:"tips"`
}

// ParseInterviewSummary decodes a model reply, tolerating code fences and tips given as
// either a list or one block of lines.
func ParseInterviewSummary(reply string) (*models.InterviewSummary, error) {
	var raw rawInterviewSummary
	if err := json.Unmarshal([]byte(StripCodeFence(reply)), &raw); err != nil {
		return nil, fmt.Errorf("%w: model did not return valid JSON: %w", models.ErrGeneration, err)
	}
	return &models.InterviewSummary{
		Summary: strings.TrimSpace(raw.Summary),
		Tips:    parseList(raw.Tips),
	}, nil
}

type rawAnalysis struct {
	Score         json.RawMessage `json:"score"`
	Strengths     json.RawMessage `json:"strengths"`
	Improvements  json.RawMessage `json:"improvements"`
	MissingSkills json.RawMessage `json:"missingSkills"`
	Summary       string          `json:"summary"`
}

// ParseAnalysis decodes a model reply, tolerating Markdown code fences, string or numeric
// scores, and strengths/improvements given either as a list or as one block of lines.
func ParseAnalysis(reply string) (*models.Analysis, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(StripCodeFence(reply)), &raw); err != nil {
		return nil, fmt.Errorf("%w: model did not return valid JSON: %w", models.ErrGeneration, err)
	}
	score, err := parseScore(raw.Score)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	return &models.Analysis{
		Score:         score,
		Strengths:     parseList(raw.Strengths),
		Improvements:  parseList(raw.Improvements),
		MissingSkills: parseList(raw.MissingSkills),
		Summary:       strings.TrimSpace(raw.Summary),
	}, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseScore(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("analysis has no score")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("invalid score %s", raw)
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "/10"))
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, fmt.Errorf("invalid score %q", s)
		}
	}
	return math.Max(0, math.Min(10, f)), nil
}

func parseList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		var block string
		if err := json.Unmarshal(raw, &block); err != nil {
			return []string{}
		}
		items = strings.Split(block, "\n")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		it = strings.TrimSpace(strings.TrimLeft(it, "-*•"))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
