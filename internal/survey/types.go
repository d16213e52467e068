package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Confidence is the model's self-reported certainty for one match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalizes s (case and surrounding space) into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	default:
		return "", fmt.Errorf("unknown confidence %q", s)
	}
}

// MatchedQuestion is one question/answer pairing extracted from a transcription.
// An empty ExtractedAnswer means the question was mentioned but not answered.
type MatchedQuestion struct {
	QuestionID          int
	QuestionText        string
	ExtractedAnswer     string
	Confidence          Confidence
	ClarificationNeeded bool
}

// Answered reports whether the record carries a non-blank answer.
func (m MatchedQuestion) Answered() bool {
	return strings.TrimSpace(m.ExtractedAnswer) != ""
}

type matchedQuestionJSON struct {
	QuestionID          int        `json:"matched_question_id"`
	QuestionText        string     `json:"matched_question"`
	ExtractedAnswer     string     `json:"extracted_answer"`
	Confidence          Confidence `json:"confidence"`
	ClarificationNeeded bool       `json:"clarification_needed"`
}

func (m MatchedQuestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(matchedQuestionJSON{
		QuestionID:          m.QuestionID,
		QuestionText:        m.QuestionText,
		ExtractedAnswer:     m.ExtractedAnswer,
		Confidence:          m.Confidence,
		ClarificationNeeded: m.ClarificationNeeded,
	})
}

// UnmarshalJSON decodes one wire record. Every field except extracted_answer
// is required; extracted_answer may be missing or null.
func (m *MatchedQuestion) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID          *int    `json:"matched_question_id"`
		QuestionText        *string `json:"matched_question"`
		ExtractedAnswer     *string `json:"extracted_answer"`
		Confidence          *string `json:"confidence"`
		ClarificationNeeded *bool   `json:"clarification_needed"`
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("matched question is null")
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var missing []string
	if raw.QuestionID == nil {
		missing = append(missing, "matched_question_id")
	}
	if raw.QuestionText == nil {
		missing = append(missing, "matched_question")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if raw.ClarificationNeeded == nil {
		missing = append(missing, "clarification_needed")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	conf, err := ParseConfidence(*raw.Confidence)
	if err != nil {
		return err
	}

	*m = MatchedQuestion{
		QuestionID:          *raw.QuestionID,
		QuestionText:        *raw.QuestionText,
		Confidence:          conf,
		ClarificationNeeded: *raw.ClarificationNeeded,
	}
	if raw.ExtractedAnswer != nil {
		m.ExtractedAnswer = *raw.ExtractedAnswer
	}
	return nil
}

// RespondentInfo is the optional self-reported respondent block.
type RespondentInfo struct {
	Name     string `json:"name"`
	Age      string `json:"age"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// SurveyExport is one completed recording session chosen for export.
type SurveyExport struct {
	Timestamp                time.Time
	Respondent               *RespondentInfo
	Transcription            string
	MatchedQuestions         []MatchedQuestion
	QuestionnaireTitle       string
	QuestionnaireDescription string
}

// AnsweredIDs returns the question ids this survey answered with non-blank text.
func (s SurveyExport) AnsweredIDs() map[int]bool {
	ids := make(map[int]bool, len(s.MatchedQuestions))
	for _, m := range s.MatchedQuestions {
		if m.Answered() {
			ids[m.QuestionID] = true
		}
	}
	return ids
}
