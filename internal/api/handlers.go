package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/ingest"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/storage"
	"github.com/kalambet/fieldmatch/internal/survey"
)

// handleParse decodes a raw completion sent as the request body.
// ?policy=skip_invalid drops bad elements instead of failing.
func handleParse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		policy := matching.PolicyStrict
		switch r.URL.Query().Get("policy") {
		case "", "strict":
		case "skip_invalid":
			policy = matching.PolicySkipInvalid
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown policy %q", r.URL.Query().Get("policy"))
			return
		}

		rep, err := matching.ParseWith(string(body), policy)
		if errors.Is(err, matching.ErrMalformedResponse) {
			httpError(w, http.StatusUnprocessableEntity, "malformed_response", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "parsing: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, newParseView(rep))
	}
}

type classifyRequest struct {
	Answer string `json:"answer"`
}

func handleClassify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, newBucketView(deps.classifier().Classify(req.Answer)))
	}
}

type submitRequest struct {
	Transcription string                 `json:"transcription"`
	Respondent    *survey.RespondentInfo `json:"respondent"`
}

func handleSubmitSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxTranscriptionSize)
		defer r.Body.Close()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sess, err := ingest.Submit(deps.Store, req.Transcription, req.Respondent)
		if errors.Is(err, ingest.ErrEmptyTranscription) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "transcription is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue session: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     sess.ID,
			"status": sess.Status,
		})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		sessions, err := deps.Store.ListSessions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, newSessionView(s, deps.Exports))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Store.GetSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, newSessionView(sess, deps.Exports))
	}
}

func handleAggregate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := deps.aggregateOptions(strings.TrimSpace(r.URL.Query().Get("group_by")))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		results, err := aggregate.AggregateFiles(r.Context(), deps.Exports, deps.Catalog, opts)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "aggregation failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, newResultViews(results))
	}
}

func handleQuestionnaire(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Catalog == nil {
			httpError(w, http.StatusNotFound, "not_found", "no questionnaire loaded")
			return
		}
		writeJSON(w, http.StatusOK, newQuestionnaireView(deps.Catalog))
	}
}
