package search

import (
	"strings"

	"github.com/hyperjump/mensetsu/internal/models"
)

// Apology is returned as the answer whenever retrieval or generation fails.
const Apology = "I'm sorry, I encountered an error while processing your request."

const groundingInstructions = `You are acting as a helpful AI assistant that can analyze and answer
questions about resumes and professional experience.

Use only the context provided from the resume to answer the question.
If you don't know or the information is not in the resume, say so clearly.
Do not make up or add information not present in the resume.
Be professional and objective in your responses.`

// ContextBlock joins the text of matches that carry any, in the given order,
// separated by blank lines.
func ContextBlock(matches []*models.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := strings.TrimSpace(m.Metadata.GroundingText()); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// BuildPrompt returns the grounding prompt for question over contextBlock.
func BuildPrompt(contextBlock, question string) string {
	var sb strings.Builder
	sb.WriteString(groundingInstructions)
	sb.WriteString("\n\nContext from resume:\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
