// Package export reads and writes survey and aggregation export documents.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/classify"
	"github.com/kalambet/fieldmatch/internal/survey"
)

const exportTimeLayout = time.RFC3339

type surveyInfo struct {
	ExportTime         string `json:"export_time"`
	TotalResponses     int    `json:"total_responses"`
	QuestionnaireTitle string `json:"questionnaire_title"`
}

type questionnaireInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type surveyDoc struct {
	ExportInfo     surveyInfo               `json:"export_info"`
	Timestamp      json.Number              `json:"timestamp"`
	RespondentInfo *survey.RespondentInfo   `json:"respondent_info,omitempty"`
	Transcription  string                   `json:"transcription"`
	Matched        []survey.MatchedQuestion `json:"matched_questions"`
	Questionnaire  *questionnaireInfo       `json:"questionnaire,omitempty"`
}

// EncodeSurvey renders s as a survey export document stamped with exportTime.
func EncodeSurvey(s survey.SurveyExport, exportTime time.Time) ([]byte, error) {
	doc := surveyDoc{
		ExportInfo: surveyInfo{
			ExportTime:         exportTime.UTC().Format(exportTimeLayout),
			TotalResponses:     len(s.MatchedQuestions),
			QuestionnaireTitle: s.QuestionnaireTitle,
		},
		Timestamp:      encodeTimestamp(s.Timestamp),
		RespondentInfo: s.Respondent,
		Transcription:  s.Transcription,
		Matched:        s.MatchedQuestions,
	}
	if doc.Matched == nil {
		doc.Matched = []survey.MatchedQuestion{}
	}
	if s.QuestionnaireTitle != "" || s.QuestionnaireDescription != "" {
		doc.Questionnaire = &questionnaireInfo{Title: s.QuestionnaireTitle, Description: s.QuestionnaireDescription}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeSurvey parses a survey export document. export_info, timestamp,
// transcription and matched_questions are required; respondent_info and
// questionnaire may be absent. Any mismatch is a *DecodeError.
func DecodeSurvey(data []byte) (survey.SurveyExport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return survey.SurveyExport{}, &DecodeError{Err: err}
	}
	for _, f := range []string{"export_info", "timestamp", "transcription", "matched_questions"} {
		if v, ok := raw[f]; !ok || isNull(v) {
			return survey.SurveyExport{}, &DecodeError{Field: f, Err: errors.New("required field missing")}
		}
	}

	var info surveyInfo
	if err := json.Unmarshal(raw["export_info"], &info); err != nil {
		return survey.SurveyExport{}, &DecodeError{Field: "export_info", Err: err}
	}
	ts, err := decodeTimestamp(raw["timestamp"])
	if err != nil {
		return survey.SurveyExport{}, &DecodeError{Field: "timestamp", Err: err}
	}

	out := survey.SurveyExport{Timestamp: ts, QuestionnaireTitle: info.QuestionnaireTitle}
	if err := json.Unmarshal(raw["transcription"], &out.Transcription); err != nil {
		return survey.SurveyExport{}, &DecodeError{Field: "transcription", Err: err}
	}
	if err := json.Unmarshal(raw["matched_questions"], &out.MatchedQuestions); err != nil {
		return survey.SurveyExport{}, &DecodeError{Field: "matched_questions", Err: err}
	}
	if v, ok := raw["respondent_info"]; ok && !isNull(v) {
		out.Respondent = &survey.RespondentInfo{}
		if err := json.Unmarshal(v, out.Respondent); err != nil {
			return survey.SurveyExport{}, &DecodeError{Field: "respondent_info", Err: err}
		}
	}
	if v, ok := raw["questionnaire"]; ok && !isNull(v) {
		var q questionnaireInfo
		if err := json.Unmarshal(v, &q); err != nil {
			return survey.SurveyExport{}, &DecodeError{Field: "questionnaire", Err: err}
		}
		out.QuestionnaireDescription = q.Description
		if out.QuestionnaireTitle == "" {
			out.QuestionnaireTitle = q.Title
		}
	}
	return out, nil
}

type aggregationInfo struct {
	ExportTime     string `json:"export_time"`
	Group          string `json:"group"`
	FilesProcessed int    `json:"files_processed"`
	FilesSkipped   int    `json:"files_skipped"`
}

type answerCount struct {
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

type questionStatistics struct {
	QuestionID   int           `json:"question_id"`
	QuestionText string        `json:"question_text"`
	Answers      []answerCount `json:"answers"`
}

type aggregationDoc struct {
	ExportInfo *aggregationInfo               `json:"export_info"`
	Summary    *string                        `json:"aggregation_summary"`
	Statistics map[string]*questionStatistics `json:"statistics"`
}

func statisticsKey(id int) string { return "question_" + strconv.Itoa(id) }

// EncodeAggregation renders r as an aggregation export document. Answers are
// listed yes, no, unanswered, then other answers by descending count.
func EncodeAggregation(r *aggregate.Result, exportTime time.Time) ([]byte, error) {
	summary := r.Summary
	doc := aggregationDoc{
		ExportInfo: &aggregationInfo{
			ExportTime:     exportTime.UTC().Format(exportTimeLayout),
			Group:          r.Group,
			FilesProcessed: r.FilesProcessed,
			FilesSkipped:   r.FilesSkipped,
		},
		Summary:    &summary,
		Statistics: make(map[string]*questionStatistics, len(r.PerQuestion)),
	}
	for id, q := range r.PerQuestion {
		st := &questionStatistics{QuestionID: id, QuestionText: q.QuestionText}
		for _, b := range q.Buckets() {
			st.Answers = append(st.Answers, answerCount{Answer: b.Display, Count: b.Count})
		}
		doc.Statistics[statisticsKey(id)] = st
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeAggregation parses an aggregation export document back into a
// Result. Bucket keys are rebuilt from the lowercase answer text.
func DecodeAggregation(data []byte) (*aggregate.Result, error) {
	var doc aggregationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Err: err}
	}
	switch {
	case doc.ExportInfo == nil:
		return nil, &DecodeError{Field: "export_info", Err: errors.New("required field missing")}
	case doc.Summary == nil:
		return nil, &DecodeError{Field: "aggregation_summary", Err: errors.New("required field missing")}
	case doc.Statistics == nil:
		return nil, &DecodeError{Field: "statistics", Err: errors.New("required field missing")}
	}

	r := &aggregate.Result{
		Group:          doc.ExportInfo.Group,
		PerQuestion:    make(map[int]*aggregate.QuestionStats, len(doc.Statistics)),
		FilesProcessed: doc.ExportInfo.FilesProcessed,
		FilesSkipped:   doc.ExportInfo.FilesSkipped,
		Summary:        *doc.Summary,
	}
	for key, st := range doc.Statistics {
		if st == nil || key != statisticsKey(st.QuestionID) {
			return nil, &DecodeError{Field: "statistics." + key, Err: errors.New("key does not match question_id")}
		}
		q := &aggregate.QuestionStats{
			QuestionID:   st.QuestionID,
			QuestionText: st.QuestionText,
			Counts:       make(map[string]int, len(st.Answers)),
			DisplayNames: make(map[string]string, len(st.Answers)),
		}
		for _, a := range st.Answers {
			// Reserved buckets are written first; a repeat of their text is an
			// Other answer.
			k := strings.ToLower(strings.TrimSpace(a.Answer))
			if _, seen := q.Counts[k]; !classify.IsReserved(k) || seen {
				k = classify.OtherKey(k)
			}
			q.Counts[k] += a.Count
			if _, ok := q.DisplayNames[k]; !ok {
				q.DisplayNames[k] = a.Answer
			}
		}
		r.PerQuestion[st.QuestionID] = q
	}
	return r, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// encodeTimestamp writes t as seconds since the epoch with microsecond precision.
func encodeTimestamp(t time.Time) json.Number {
	return json.Number(strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', -1, 64))
}

func decodeTimestamp(v json.RawMessage) (time.Time, error) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return time.Time{}, err
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("not a number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("timestamp out of range")
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), nil
}
