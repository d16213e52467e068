package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/survey"
)

func fullSurvey() survey.SurveyExport {
	return survey.SurveyExport{
		Timestamp: time.Date(2026, 5, 14, 9, 30, 12, 345678000, time.UTC),
		Respondent: &survey.RespondentInfo{
			Name:     "Ana Ruiz",
			Age:      "34",
			Gender:   "female",
			Phone:    "+34 600 000 000",
			Location: "North Park",
		},
		Transcription: "There are benches. I do not feel safe at night.",
		MatchedQuestions: []survey.MatchedQuestion{
			{QuestionID: 1, QuestionText: "Are there benches?", ExtractedAnswer: "There are benches", Confidence: survey.ConfidenceHigh},
			{QuestionID: 2, QuestionText: "Do you feel safe?", ExtractedAnswer: "not at night", Confidence: survey.ConfidenceMedium, ClarificationNeeded: true},
			{QuestionID: 3, QuestionText: "Is it well lit?", Confidence: survey.ConfidenceLow},
		},
		QuestionnaireTitle:       "Park audit",
		QuestionnaireDescription: "Neighbourhood park walk-through",
	}
}

func TestSurvey_RoundTrip(t *testing.T) {
	want := fullSurvey()
	data, err := EncodeSurvey(want, time.Now())
	if err != nil {
		t.Fatalf("EncodeSurvey: %v", err)
	}
	got, err := DecodeSurvey(data)
	if err != nil {
		t.Fatalf("DecodeSurvey: %v", err)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	got.Timestamp = want.Timestamp
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeSurvey() = %+v, want %+v", got, want)
	}
}

func TestSurvey_DocumentShape(t *testing.T) {
	exportTime := time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC)
	data, err := EncodeSurvey(fullSurvey(), exportTime)
	if err != nil {
		t.Fatalf("EncodeSurvey: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	info := doc["export_info"].(map[string]any)
	if info["export_time"] != "2026-05-14T10:00:00Z" {
		t.Errorf("export_time = %v", info["export_time"])
	}
	if info["total_responses"] != float64(3) {
		t.Errorf("total_responses = %v, want 3", info["total_responses"])
	}
	if info["questionnaire_title"] != "Park audit" {
		t.Errorf("questionnaire_title = %v", info["questionnaire_title"])
	}
	if _, ok := doc["timestamp"].(float64); !ok {
		t.Errorf("timestamp = %T, want JSON number", doc["timestamp"])
	}
	mq := doc["matched_questions"].([]any)[0].(map[string]any)
	for _, k := range []string{"matched_question_id", "matched_question", "extracted_answer", "confidence", "clarification_needed"} {
		if _, ok := mq[k]; !ok {
			t.Errorf("matched question missing %q", k)
		}
	}
}

func TestSurvey_OptionalBlocksAbsent(t *testing.T) {
	s := survey.SurveyExport{Timestamp: time.Unix(1700000000, 0).UTC(), Transcription: "hi"}
	data, err := EncodeSurvey(s, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "respondent_info") || strings.Contains(string(data), `"questionnaire"`) {
		t.Errorf("optional blocks should be omitted:\n%s", data)
	}
	got, err := DecodeSurvey(data)
	if err != nil {
		t.Fatalf("DecodeSurvey: %v", err)
	}
	if got.Respondent != nil {
		t.Errorf("Respondent = %+v, want nil", got.Respondent)
	}
	if got.MatchedQuestions == nil || len(got.MatchedQuestions) != 0 {
		t.Errorf("MatchedQuestions = %#v, want empty non-nil", got.MatchedQuestions)
	}
}

func TestDecodeSurvey_RequiredFields(t *testing.T) {
	base := `{"export_info": {"export_time": "x", "total_responses": 0, "questionnaire_title": ""}, "timestamp": 1700000000.5, "transcription": "t", "matched_questions": []}`
	if _, err := DecodeSurvey([]byte(base)); err != nil {
		t.Fatalf("base document should decode: %v", err)
	}

	for _, field := range []string{"export_info", "timestamp", "transcription", "matched_questions"} {
		t.Run(field, func(t *testing.T) {
			var doc map[string]json.RawMessage
			json.Unmarshal([]byte(base), &doc)
			delete(doc, field)
			data, _ := json.Marshal(doc)

			_, err := DecodeSurvey(data)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Field != field {
				t.Errorf("DecodeError = %+v, want field %q", de, field)
			}
		})
	}
}

func TestDecodeSurvey_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":       `{{{`,
		"null matched":   `{"export_info": {}, "timestamp": 1, "transcription": "", "matched_questions": null}`,
		"string ts":      `{"export_info": {}, "timestamp": "yesterday", "transcription": "", "matched_questions": []}`,
		"bad element":    `{"export_info": {}, "timestamp": 1, "transcription": "", "matched_questions": [{"matched_question_id": 1}]}`,
		"bad confidence": `{"export_info": {}, "timestamp": 1, "transcription": "", "matched_questions": [{"matched_question_id": 1, "matched_question": "q", "confidence": "certain", "clarification_needed": false}]}`,
	}
	for name, doc := range tests {
		if _, err := DecodeSurvey([]byte(doc)); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", name, err)
		}
	}
}

func sampleResult(t *testing.T) *aggregate.Result {
	t.Helper()
	cat, err := questionnaire.New("Park audit", "", []questionnaire.Question{
		{ID: 1, Text: "Are there benches?"},
		{ID: 12, Text: "Anything else?"},
	})
	if err != nil {
		t.Fatal(err)
	}
	surveys := []survey.SurveyExport{
		{MatchedQuestions: []survey.MatchedQuestion{{QuestionID: 1, ExtractedAnswer: "yes"}, {QuestionID: 12, ExtractedAnswer: "More trees"}}},
		{MatchedQuestions: []survey.MatchedQuestion{{QuestionID: 1, ExtractedAnswer: "no"}, {QuestionID: 12, ExtractedAnswer: "more trees"}}},
		{MatchedQuestions: []survey.MatchedQuestion{{QuestionID: 1, ExtractedAnswer: "good"}}},
	}
	return aggregate.Aggregate(surveys, cat, aggregate.Options{})[aggregate.DefaultGroup]
}

func TestAggregation_DocumentShape(t *testing.T) {
	data, err := EncodeAggregation(sampleResult(t), time.Now())
	if err != nil {
		t.Fatalf("EncodeAggregation: %v", err)
	}
	var doc struct {
		ExportInfo map[string]any `json:"export_info"`
		Summary    string         `json:"aggregation_summary"`
		Statistics map[string]struct {
			QuestionID   int    `json:"question_id"`
			QuestionText string `json:"question_text"`
			Answers      []struct {
				Answer string `json:"answer"`
				Count  int    `json:"count"`
			} `json:"answers"`
		} `json:"statistics"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ExportInfo["files_processed"] != float64(3) {
		t.Errorf("files_processed = %v, want 3", doc.ExportInfo["files_processed"])
	}
	if !strings.Contains(doc.Summary, "Q12: Anything else?") {
		t.Errorf("summary = %q", doc.Summary)
	}
	q12, ok := doc.Statistics["question_12"]
	if !ok {
		t.Fatalf("statistics keys = %v, want question_12", doc.Statistics)
	}
	if q12.QuestionID != 12 || q12.QuestionText != "Anything else?" {
		t.Errorf("question_12 = %+v", q12)
	}
	last := q12.Answers[len(q12.Answers)-1]
	if last.Answer != "More trees" || last.Count != 2 {
		t.Errorf("other answer = %+v, want More trees x2", last)
	}
	q1 := doc.Statistics["question_1"]
	if q1.Answers[0].Answer != "Yes" || q1.Answers[0].Count != 2 {
		t.Errorf("first answer = %+v, want Yes x2", q1.Answers[0])
	}
}

func TestAggregation_RoundTrip(t *testing.T) {
	want := sampleResult(t)
	data, err := EncodeAggregation(want, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeAggregation(data)
	if err != nil {
		t.Fatalf("DecodeAggregation: %v", err)
	}
	if got.Summary != want.Summary || got.FilesProcessed != want.FilesProcessed || got.Group != want.Group {
		t.Errorf("header = %+v, want %+v", got, want)
	}
	for id, wq := range want.PerQuestion {
		gq := got.PerQuestion[id]
		if gq == nil {
			t.Fatalf("question %d missing", id)
		}
		if !reflect.DeepEqual(gq.Counts, wq.Counts) {
			t.Errorf("question %d counts = %v, want %v", id, gq.Counts, wq.Counts)
		}
		if !reflect.DeepEqual(gq.DisplayNames, wq.DisplayNames) {
			t.Errorf("question %d displays = %v, want %v", id, gq.DisplayNames, wq.DisplayNames)
		}
	}
}

func TestAggregation_RoundTripAnswerReadingUnanswered(t *testing.T) {
	cat, err := questionnaire.New("Park audit", "", []questionnaire.Question{{ID: 1, Text: "Are there benches?"}})
	if err != nil {
		t.Fatal(err)
	}
	surveys := []survey.SurveyExport{
		{MatchedQuestions: []survey.MatchedQuestion{{QuestionID: 1, ExtractedAnswer: "Unanswered"}}},
		{},
	}
	want := aggregate.Aggregate(surveys, cat, aggregate.Options{})[aggregate.DefaultGroup]

	data, err := EncodeAggregation(want, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeAggregation(data)
	if err != nil {
		t.Fatalf("DecodeAggregation: %v", err)
	}
	if !reflect.DeepEqual(got.PerQuestion[1].Counts, want.PerQuestion[1].Counts) {
		t.Errorf("counts = %v, want %v", got.PerQuestion[1].Counts, want.PerQuestion[1].Counts)
	}
	if got.PerQuestion[1].Counts["unanswered"] != 1 {
		t.Errorf("unanswered = %d, want 1", got.PerQuestion[1].Counts["unanswered"])
	}
}

func TestDecodeAggregation_RejectsSurveyDocument(t *testing.T) {
	data, _ := EncodeSurvey(fullSurvey(), time.Now())
	if _, err := DecodeAggregation(data); !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestDecodeSurvey_RejectsAggregationDocument(t *testing.T) {
	data, _ := EncodeAggregation(sampleResult(t), time.Now())
	if _, err := DecodeSurvey(data); !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestStore_SaveListRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	st := NewStore(dir)

	names, err := st.List(context.Background())
	if err != nil || len(names) != 0 {
		t.Fatalf("List on missing dir = %v, %v; want empty", names, err)
	}

	name, err := st.Save(fullSurvey())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(name, "survey_") || !strings.HasSuffix(name, ".json") {
		t.Errorf("name = %q", name)
	}
	if _, err := st.SaveAggregation(sampleResult(t)); err != nil {
		t.Fatalf("SaveAggregation: %v", err)
	}

	names, err = st.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != name {
		t.Errorf("List = %v, want only %q", names, name)
	}

	got, err := st.ReadSurvey(context.Background(), name)
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if got.Respondent == nil || got.Respondent.Location != "North Park" {
		t.Errorf("Respondent = %+v", got.Respondent)
	}
}

func TestStore_SaveSessionReplaces(t *testing.T) {
	st := NewStore(t.TempDir())
	exp := fullSurvey()

	first, err := st.SaveSession("sess-1", exp)
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if first != "survey_20260514T093012Z_sess-1.json" {
		t.Errorf("name = %q", first)
	}

	exp.Transcription = "second attempt"
	second, err := st.SaveSession("sess-1", exp)
	if err != nil {
		t.Fatalf("SaveSession again: %v", err)
	}
	if second != first {
		t.Errorf("second name = %q, want %q", second, first)
	}

	names, err := st.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Fatalf("List = %v, want one document per session", names)
	}
	got, err := st.ReadSurvey(context.Background(), first)
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if got.Transcription != "second attempt" {
		t.Errorf("Transcription = %q, want the latest save", got.Transcription)
	}

	for _, id := range []string{"", "../x", "a/b", ".hidden"} {
		if _, err := st.SaveSession(id, exp); err == nil {
			t.Errorf("SaveSession(%q) succeeded, want error", id)
		}
	}
}

func TestStore_ReadErrors(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	_, err := st.ReadSurvey(context.Background(), "survey_missing.json")
	if !errors.Is(err, ErrIO) {
		t.Errorf("missing file err = %v, want ErrIO", err)
	}

	os.WriteFile(filepath.Join(dir, "survey_bad.json"), []byte(`{"export_info": {}}`), 0o644)
	_, err = st.ReadSurvey(context.Background(), "survey_bad.json")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if de.Name != "survey_bad.json" {
		t.Errorf("Name = %q", de.Name)
	}
}

func TestStore_WriteFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	os.WriteFile(file, []byte("x"), 0o644)

	_, err := NewStore(file).Save(fullSurvey())
	if !errors.Is(err, ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

func TestAggregateFiles_OverStore(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	for range 3 {
		if _, err := st.Save(fullSurvey()); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "survey_corrupt.json"), []byte("{not json"), 0o644)
	os.WriteFile(filepath.Join(dir, "survey_partial.json"), []byte(`{"export_info": {}, "timestamp": 1, "transcription": ""}`), 0o644)

	groups, err := aggregate.AggregateFiles(context.Background(), st, nil, aggregate.Options{})
	if err != nil {
		t.Fatalf("AggregateFiles: %v", err)
	}
	res := groups[aggregate.DefaultGroup]
	if res.FilesProcessed != 3 || res.FilesSkipped != 2 {
		t.Errorf("processed/skipped = %d/%d, want 3/2", res.FilesProcessed, res.FilesSkipped)
	}
	for _, sk := range res.Skipped {
		if !errors.Is(sk.Err, ErrDecode) {
			t.Errorf("skipped %s: %v, want ErrDecode", sk.Name, sk.Err)
		}
	}
}
