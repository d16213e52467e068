package matching

import (
	"fmt"
	"strings"

	"github.com/kalambet/fieldmatch/internal/llm"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
)

const systemPromptTemplate = `You are a survey response matcher. You receive the transcription of a field interview and the questionnaire the interviewer was following. Match what the respondent said to the questions below.

Your output must be ONLY a single valid JSON array. Do not include any other text, prose, or markdown. Each element must be an object with exactly these fields:
- "matched_question_id": integer id of the question from the list below
- "matched_question": the question text
- "extracted_answer": the respondent's answer in their own words, or null if the question was raised but not answered
- "confidence": one of "high", "medium", "low"
- "clarification_needed": true if the answer is ambiguous or incomplete

Rules:
- Include only questions the transcription actually addresses.
- Never invent answers that are not in the transcription.
- If nothing matches, return an empty array [].`

// BuildPrompt constructs the chat messages asking the model to match a
// transcription against every question in cat.
func BuildPrompt(cat *questionnaire.Catalog, transcription string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)

	if cat != nil {
		if cat.Title() != "" {
			fmt.Fprintf(&sb, "\n\n[Questionnaire]\n%s", cat.Title())
			if cat.Description() != "" {
				fmt.Fprintf(&sb, "\n%s", cat.Description())
			}
		}
		sb.WriteString("\n\n[Questions]")
		for _, q := range cat.Questions() {
			fmt.Fprintf(&sb, "\n- id: %d\n  question: %s\n  type: %s", q.ID, q.Text, q.Type)
			if q.FollowUp != "" {
				fmt.Fprintf(&sb, "\n  follow_up: %s", q.FollowUp)
			}
			if len(q.Keywords) > 0 {
				fmt.Fprintf(&sb, "\n  keywords: %s", strings.Join(q.Keywords, ", "))
			}
		}
	}

	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: transcription},
	}
}
