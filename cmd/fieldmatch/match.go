package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/fieldmatch/internal/config"
	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/llm"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/survey"
	"github.com/kalambet/fieldmatch/internal/transcript"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match one transcription against the questionnaire and export it",
	Long: `Match one transcription against the questionnaire and write a survey export.

Runs in-process; no server is needed. Transcripts may be plain text, HTML or PDF.

Examples:
  fieldmatch match --file interview-07.pdf --location "North Park"
  fieldmatch match --text "Yes, the paths are lit. I feel safe." --skip-invalid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := transcriptionInput(cmd)
		if err != nil {
			return err
		}
		skip, _ := cmd.Flags().GetBool("skip-invalid")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		chatter, sel, err := llm.New(cmd.Context(), cfg.LLMSelection(), config.NewCredentials(config.NewKeychain()))
		if err != nil {
			return err
		}
		slog.Debug("matching transcription", "provider", sel.Provider, "model", sel.Model)

		printStep("Matching against %q (%d questions) with %s", cat.Title(), cat.Len(), sel.Model)
		m := matching.NewMatcher(llm.NewLimited(chatter, cfg.LLM.RequestsPerMinute), sel.Model, cat)
		if skip {
			m = m.WithPolicy(matching.PolicySkipInvalid)
		}

		res, err := matchTranscript(cmd.Context(), m, export.NewStore(cfg.Export.Dir), text, respondentFromFlags(cmd), time.Now())
		if err != nil {
			return err
		}
		for _, s := range res.Skipped {
			printWarning("skipped element %d: %v", s.Index, s.Err)
		}
		printSuccess("Matched %d questions, saved %s", len(res.Records), res.Path)
		return nil
	},
}

type matchResult struct {
	matching.ParseReport
	Path string
}

// matchTranscript runs one transcription through m and saves the export.
func matchTranscript(ctx context.Context, m *matching.Matcher, store *export.Store, text string, respondent *survey.RespondentInfo, now time.Time) (matchResult, error) {
	rep, err := m.Match(ctx, text)
	if err != nil {
		return matchResult{}, fmt.Errorf("matching transcription: %w", err)
	}

	cat := m.Catalog()
	exp := survey.SurveyExport{
		Timestamp:                now,
		Respondent:               respondent,
		Transcription:            text,
		MatchedQuestions:         rep.Records,
		QuestionnaireTitle:       cat.Title(),
		QuestionnaireDescription: cat.Description(),
	}
	name, err := store.Save(exp)
	if err != nil {
		return matchResult{}, fmt.Errorf("saving export: %w", err)
	}
	return matchResult{ParseReport: rep, Path: store.Path(name)}, nil
}

func addTranscriptionFlags(cmd *cobra.Command) {
	cmd.Flags().String("text", "", "transcription text")
	cmd.Flags().String("file", "", "transcript file (.txt, .html or .pdf)")
	cmd.Flags().String("name", "", "respondent name")
	cmd.Flags().String("age", "", "respondent age")
	cmd.Flags().String("gender", "", "respondent gender")
	cmd.Flags().String("phone", "", "respondent phone")
	cmd.Flags().String("location", "", "interview location")
}

func transcriptionInput(cmd *cobra.Command) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case text != "" && file != "":
		return "", fmt.Errorf("--text and --file are mutually exclusive")
	case text != "":
		return text, nil
	case file != "":
		return transcript.Load(file)
	}
	return "", fmt.Errorf("one of --text or --file is required")
}

// respondentFromFlags returns nil when no respondent flag was given.
func respondentFromFlags(cmd *cobra.Command) *survey.RespondentInfo {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	r := survey.RespondentInfo{
		Name:     get("name"),
		Age:      get("age"),
		Gender:   get("gender"),
		Phone:    get("phone"),
		Location: get("location"),
	}
	if r == (survey.RespondentInfo{}) {
		return nil
	}
	return &r
}

func init() {
	addTranscriptionFlags(matchCmd)
	matchCmd.Flags().Bool("skip-invalid", false, "keep valid records when some elements of the reply are invalid")
}
