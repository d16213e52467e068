package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/storage"
	"github.com/kalambet/fieldmatch/internal/survey"
)

const testToken = "test-token"

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cat, err := questionnaire.New("Park survey", "Benches and paths", []questionnaire.Question{
		{ID: 1, Text: "Are there enough benches?", Type: "yes_no"},
		{ID: 2, Text: "Are the paths lit at night?", Type: "yes_no"},
	})
	if err != nil {
		t.Fatalf("questionnaire.New: %v", err)
	}

	return Deps{
		Store:   store,
		Exports: export.NewStore(t.TempDir()),
		Catalog: cat,
		Token:   testToken,
		Workers: 2,
	}
}

func saveSurvey(t *testing.T, exports *export.Store, location string, answers map[int]string) {
	t.Helper()
	exp := survey.SurveyExport{
		Timestamp:     time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC),
		Respondent:    &survey.RespondentInfo{Location: location},
		Transcription: "interview",
	}
	for id, a := range answers {
		exp.MatchedQuestions = append(exp.MatchedQuestions, survey.MatchedQuestion{
			QuestionID:      id,
			QuestionText:    "q",
			ExtractedAnswer: a,
			Confidence:      survey.ConfidenceHigh,
		})
	}
	if _, err := exports.Save(exp); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, rr, &body)
	return body.Error.Type
}

func TestHealth_NoAuth(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	decodeBody(t, rr, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestBearerAuth(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"empty credential", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
		{"lowercase scheme", "bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/questionnaire", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}

func TestBearerAuth_EmptyTokenRejectsAll(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestParse_Fenced(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	body := "```json\n[{\"matched_question_id\": 1, \"matched_question\": \"Are there enough benches?\", \"extracted_answer\": \"yes\", \"confidence\": \"high\", \"clarification_needed\": false}]\n```"
	rr := do(t, h, http.MethodPost, "/parse", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}

	var got struct {
		Records  []survey.MatchedQuestion `json:"records"`
		Envelope string                   `json:"envelope"`
	}
	decodeBody(t, rr, &got)
	if len(got.Records) != 1 || got.Records[0].QuestionID != 1 {
		t.Errorf("records = %+v, want one record for question 1", got.Records)
	}
	if got.Envelope != "array" {
		t.Errorf("envelope = %q, want array", got.Envelope)
	}
}

func TestParse_Malformed(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rr := do(t, h, http.MethodPost, "/parse", "Sorry, I could not help with that.")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	if typ := errorType(t, rr); typ != "malformed_response" {
		t.Errorf("error type = %q, want malformed_response", typ)
	}
}

func TestParse_SkipInvalidPolicy(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	body := `[{"matched_question_id": 1, "matched_question": "q", "extracted_answer": "yes", "confidence": "high", "clarification_needed": false}, {"matched_question_id": 2}]`

	if rr := do(t, h, http.MethodPost, "/parse", body); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("strict status = %d, want 422", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/parse?policy=skip_invalid", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("skip_invalid status = %d, want 200", rr.Code)
	}
	var got struct {
		Records []json.RawMessage `json:"records"`
		Skipped []skippedView     `json:"skipped"`
	}
	decodeBody(t, rr, &got)
	if len(got.Records) != 1 || len(got.Skipped) != 1 || got.Skipped[0].Index != 1 {
		t.Errorf("got %d records, skipped %+v; want 1 record and index 1 skipped", len(got.Records), got.Skipped)
	}

	if rr := do(t, h, http.MethodPost, "/parse?policy=lenient", body); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown policy status = %d, want 400", rr.Code)
	}
}

func TestClassify(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	tests := []struct {
		answer string
		key    string
		kind   string
	}{
		{"Yes, definitely", "yes", "affirmative"},
		{"no way", "no", "negative"},
		{"   ", "unanswered", "unanswered"},
		{"Maybe later", "maybe later", "other"},
	}
	for _, tt := range tests {
		body, _ := json.Marshal(classifyRequest{Answer: tt.answer})
		rr := do(t, h, http.MethodPost, "/classify", string(body))
		if rr.Code != http.StatusOK {
			t.Fatalf("classify %q: status = %d", tt.answer, rr.Code)
		}
		var got bucketView
		decodeBody(t, rr, &got)
		if got.Key != tt.key || got.Kind != tt.kind {
			t.Errorf("classify %q = %+v, want key %q kind %q", tt.answer, got, tt.key, tt.kind)
		}
	}
}

func TestSessions_SubmitAndGet(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	rr := do(t, h, http.MethodPost, "/sessions", `{"transcription": "Plenty of benches.", "respondent": {"name": "Ana", "location": "North Park"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202; body=%s", rr.Code, rr.Body.String())
	}
	var created map[string]string
	decodeBody(t, rr, &created)
	if created["status"] != storage.SessionQueued || created["id"] == "" {
		t.Fatalf("created = %v, want queued with id", created)
	}

	rr = do(t, h, http.MethodGet, "/sessions/"+created["id"], "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	var got sessionView
	decodeBody(t, rr, &got)
	if got.ID != created["id"] || got.Status != storage.SessionQueued {
		t.Errorf("session = %+v", got)
	}

	sess, err := deps.Store.GetSession(created["id"])
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !strings.Contains(sess.RespondentJSON, "North Park") {
		t.Errorf("RespondentJSON = %q, want location stored", sess.RespondentJSON)
	}

	rr = do(t, h, http.MethodGet, "/sessions", "")
	var list []sessionView
	decodeBody(t, rr, &list)
	if len(list) != 1 {
		t.Errorf("list len = %d, want 1", len(list))
	}
}

func TestSessions_ExportPath(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	if err := deps.Store.SaveSession(storage.Session{ID: "s-1", Transcription: "t"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := deps.Store.MarkSessionExported("s-1", "survey_a.json", 3); err != nil {
		t.Fatalf("MarkSessionExported: %v", err)
	}

	rr := do(t, h, http.MethodGet, "/sessions/s-1", "")
	var got sessionView
	decodeBody(t, rr, &got)
	if got.ExportPath != filepath.Join(deps.Exports.Dir(), "survey_a.json") {
		t.Errorf("ExportPath = %q", got.ExportPath)
	}
	if got.MatchedCount != 3 {
		t.Errorf("MatchedCount = %d, want 3", got.MatchedCount)
	}
}

func TestSessions_Errors(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	if rr := do(t, h, http.MethodPost, "/sessions", `{"transcription": "  "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("empty transcription status = %d, want 400", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/sessions", `not json`); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/sessions/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rr.Code)
	}
}

func TestAggregate_Default(t *testing.T) {
	deps := newTestDeps(t)
	saveSurvey(t, deps.Exports, "North Park", map[int]string{1: "yes", 2: "no"})
	saveSurvey(t, deps.Exports, "North Park", map[int]string{1: "yes please"})
	saveSurvey(t, deps.Exports, "South Park", map[int]string{1: "nope"})
	h := NewHandler(deps)

	rr := do(t, h, http.MethodGet, "/aggregate", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}
	var got []resultView
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].Group != "all" {
		t.Fatalf("groups = %+v, want single group all", got)
	}
	all := got[0]
	if all.FilesProcessed != 3 {
		t.Errorf("FilesProcessed = %d, want 3", all.FilesProcessed)
	}
	if len(all.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(all.Questions))
	}
	q1 := all.Questions[0]
	if q1.QuestionID != 1 || q1.Total != 3 {
		t.Errorf("q1 = %+v, want id 1 total 3", q1)
	}
	if q1.Answers[0].Key != "yes" || q1.Answers[0].Count != 2 || q1.Answers[0].Percent != 66 {
		t.Errorf("q1 yes = %+v, want count 2 percent 66", q1.Answers[0])
	}
	q2 := all.Questions[1]
	if q2.Answers[2].Key != "unanswered" || q2.Answers[2].Count != 2 {
		t.Errorf("q2 unanswered = %+v, want count 2", q2.Answers[2])
	}
	if !strings.Contains(all.Summary, "Survey aggregation: all") {
		t.Errorf("summary = %q", all.Summary)
	}
}

func TestAggregate_ByLocationAndSkipped(t *testing.T) {
	deps := newTestDeps(t)
	saveSurvey(t, deps.Exports, "North Park", map[int]string{1: "yes"})
	saveSurvey(t, deps.Exports, "", map[int]string{1: "no"})
	if err := os.WriteFile(filepath.Join(deps.Exports.Dir(), "survey_broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(deps)

	rr := do(t, h, http.MethodGet, "/aggregate?group_by=location", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got []resultView
	decodeBody(t, rr, &got)
	if len(got) != 2 || got[0].Group != "North Park" || got[1].Group != "unknown" {
		t.Fatalf("groups = %+v, want North Park and unknown", got)
	}
	for _, g := range got {
		if g.FilesSkipped != 1 || len(g.Skipped) != 1 || g.Skipped[0].Name != "survey_broken.json" {
			t.Errorf("group %s skipped = %d %+v, want survey_broken.json", g.Group, g.FilesSkipped, g.Skipped)
		}
	}

	if rr := do(t, h, http.MethodGet, "/aggregate?group_by=age", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown group_by status = %d, want 400", rr.Code)
	}
}

func TestQuestionnaire(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rr := do(t, h, http.MethodGet, "/questionnaire", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	cat, err := questionnaire.ParseJSON(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not a loadable questionnaire: %v", err)
	}
	if cat.Title() != "Park survey" || cat.Len() != 2 {
		t.Errorf("catalog = %q with %d questions, want Park survey with 2", cat.Title(), cat.Len())
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/sessions?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
