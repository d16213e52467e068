package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/fieldmatch/internal/llm"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
)

// MatchTimeout bounds one model call.
const MatchTimeout = 2 * time.Minute

// Matcher maps transcriptions onto a questionnaire with an LLM.
type Matcher struct {
	client  llm.Chatter
	model   string
	catalog *questionnaire.Catalog
	policy  Policy
}

// NewMatcher creates a Matcher using the given chat client, model name and catalog.
func NewMatcher(client llm.Chatter, model string, cat *questionnaire.Catalog) *Matcher {
	return &Matcher{client: client, model: model, catalog: cat, policy: PolicyStrict}
}

// WithPolicy returns a copy of m that parses completions under p.
func (m *Matcher) WithPolicy(p Policy) *Matcher {
	c := *m
	c.policy = p
	return &c
}

// Catalog returns the questionnaire the matcher prompts with.
func (m *Matcher) Catalog() *questionnaire.Catalog { return m.catalog }

// Match sends the transcription to the model and parses its reply. A blank
// transcription yields an empty report without calling the model.
func (m *Matcher) Match(ctx context.Context, transcription string) (ParseReport, error) {
	if strings.TrimSpace(transcription) == "" {
		return ParseReport{Envelope: EnvelopeArray}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, MatchTimeout)
	defer cancel()

	raw, err := m.client.Chat(ctx, m.model, BuildPrompt(m.catalog, transcription))
	if err != nil {
		return ParseReport{}, fmt.Errorf("matching chat: %w", err)
	}

	report, err := ParseWith(raw, m.policy)
	if err != nil {
		return ParseReport{}, err
	}
	if len(report.Skipped) > 0 {
		slog.Warn("dropped invalid matched questions", "count", len(report.Skipped), "first_error", report.Skipped[0].Err)
	}
	return report, nil
}
