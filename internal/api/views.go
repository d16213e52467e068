package api

import (
	"sort"
	"time"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/classify"
	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/storage"
	"github.com/kalambet/fieldmatch/internal/survey"
)

type skippedView struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type parseView struct {
	Records  []survey.MatchedQuestion `json:"records"`
	Envelope matching.Envelope        `json:"envelope"`
	Skipped  []skippedView            `json:"skipped,omitempty"`
}

func newParseView(rep matching.ParseReport) parseView {
	v := parseView{Records: rep.Records, Envelope: rep.Envelope}
	if v.Records == nil {
		v.Records = []survey.MatchedQuestion{}
	}
	for _, s := range rep.Skipped {
		v.Skipped = append(v.Skipped, skippedView{Index: s.Index, Error: s.Err.Error()})
	}
	return v
}

type bucketView struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Display string `json:"display"`
}

func newBucketView(b classify.Bucket) bucketView {
	return bucketView{Kind: b.Kind.String(), Key: b.Key, Display: b.Display}
}

type sessionView struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExportName   string    `json:"export_name,omitempty"`
	ExportPath   string    `json:"export_path,omitempty"`
	MatchedCount int       `json:"matched_count"`
	LastError    string    `json:"last_error,omitempty"`
}

func newSessionView(s storage.Session, exports *export.Store) sessionView {
	v := sessionView{
		ID:           s.ID,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		ExportName:   s.ExportName,
		MatchedCount: s.MatchedCount,
		LastError:    s.LastError,
	}
	if s.ExportName != "" && exports != nil {
		v.ExportPath = exports.Path(s.ExportName)
	}
	return v
}

type answerView struct {
	Answer  string `json:"answer"`
	Key     string `json:"key"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

type questionStatsView struct {
	QuestionID   int          `json:"question_id"`
	QuestionText string       `json:"question_text"`
	Total        int          `json:"total"`
	Answers      []answerView `json:"answers"`
}

type skippedFileView struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type resultView struct {
	Group          string              `json:"group"`
	FilesProcessed int                 `json:"files_processed"`
	FilesSkipped   int                 `json:"files_skipped"`
	Skipped        []skippedFileView   `json:"skipped,omitempty"`
	Questions      []questionStatsView `json:"questions"`
	Summary        string              `json:"summary"`
}

func newResultView(r *aggregate.Result) resultView {
	v := resultView{
		Group:          r.Group,
		FilesProcessed: r.FilesProcessed,
		FilesSkipped:   r.FilesSkipped,
		Questions:      make([]questionStatsView, 0, len(r.PerQuestion)),
		Summary:        r.Summary,
	}
	for _, s := range r.Skipped {
		v.Skipped = append(v.Skipped, skippedFileView{Name: s.Name, Error: s.Err.Error()})
	}
	for _, id := range r.QuestionIDs() {
		q := r.PerQuestion[id]
		total := q.Total()
		qv := questionStatsView{QuestionID: id, QuestionText: q.QuestionText, Total: total}
		for _, b := range q.Buckets() {
			qv.Answers = append(qv.Answers, answerView{
				Answer:  b.Display,
				Key:     b.Key,
				Count:   b.Count,
				Percent: aggregate.Percent(b.Count, total),
			})
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

// newResultViews orders groups by name.
func newResultViews(results map[string]*aggregate.Result) []resultView {
	groups := make([]string, 0, len(results))
	for g := range results {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	out := make([]resultView, 0, len(groups))
	for _, g := range groups {
		out = append(out, newResultView(results[g]))
	}
	return out
}

type questionView struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"type"`
	FollowUp string   `json:"follow_up,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

type questionnaireView struct {
	Questionnaire struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Questions   []questionView `json:"questions"`
	} `json:"questionnaire"`
}

func newQuestionnaireView(cat *questionnaire.Catalog) questionnaireView {
	var v questionnaireView
	v.Questionnaire.Title = cat.Title()
	v.Questionnaire.Description = cat.Description()
	v.Questionnaire.Questions = make([]questionView, 0, cat.Len())
	for _, q := range cat.Questions() {
		v.Questionnaire.Questions = append(v.Questionnaire.Questions, questionView{
			ID:       q.ID,
			Question: q.Text,
			Type:     q.Type,
			FollowUp: q.FollowUp,
			Keywords: q.Keywords,
		})
	}
	return v
}
