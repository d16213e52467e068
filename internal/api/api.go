package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/classify"
	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxTranscriptionSize = 10 << 20

// Deps holds the dependencies shared by the HTTP API and the MCP server.
type Deps struct {
	Store      *storage.Store
	Exports    *export.Store
	Catalog    *questionnaire.Catalog
	Classifier *classify.Classifier
	Token      string
	// Workers bounds concurrent document reads during aggregation.
	Workers int
}

func (d Deps) classifier() *classify.Classifier {
	if d.Classifier == nil {
		return classify.Default()
	}
	return d.Classifier
}

func (d Deps) aggregateOptions(groupBy string) (aggregate.Options, error) {
	opts := aggregate.Options{Classifier: d.classifier(), Workers: d.Workers}
	switch groupBy {
	case "", aggregate.DefaultGroup:
	case "location":
		opts.GroupBy = aggregate.ByLocation
	default:
		return opts, fmt.Errorf("unknown group_by %q (want location)", groupBy)
	}
	return opts, nil
}

// NewHandler returns the HTTP API. Every route except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/parse", handleParse(deps))
		r.Post("/classify", handleClassify(deps))
		r.Post("/sessions", handleSubmitSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Get("/aggregate", handleAggregate(deps))
		r.Get("/questionnaire", handleQuestionnaire(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
