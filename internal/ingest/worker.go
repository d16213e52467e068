package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/storage"
	"github.com/kalambet/fieldmatch/internal/survey"
)

// JobMatchTranscript is the job type for matching one session's transcription.
const JobMatchTranscript = "match_transcript"

// ErrEmptyTranscription is returned by Submit for a blank transcription.
var ErrEmptyTranscription = errors.New("transcription is empty")

// JobStore abstracts the job queue and session operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) (exhausted bool, err error)
	AbandonJob(id string, errMsg string) error
	RequeueStaleJobs(cutoff time.Time) (int, error)
	GetSession(id string) (storage.Session, error)
	SetSessionStatus(id, status, lastError string) error
	MarkSessionExported(id, exportName string, matched int) error
}

// TranscriptMatcher turns a transcription into matched questions.
type TranscriptMatcher interface {
	Match(ctx context.Context, transcription string) (matching.ParseReport, error)
	Catalog() *questionnaire.Catalog
}

// ExportSaver persists a session's survey export and returns its document
// name. Saving the same session twice replaces the first document.
type ExportSaver interface {
	SaveSession(sessionID string, exp survey.SurveyExport) (string, error)
}

// Worker processes match_transcript jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	matcher TranscriptMatcher
	exports ExportSaver
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, matcher TranscriptMatcher, exports ExportSaver, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		matcher: matcher,
		exports: exports,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// staleAfter is how long a job may sit in running before Run assumes its
// worker died and puts it back in the queue.
const staleAfter = 2 * matching.MatchTimeout

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.store.RequeueStaleJobs(time.Now().Add(-staleAfter)); err != nil {
		w.logger.Error("requeueing stale jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("requeued interrupted jobs", "count", n)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single match_transcript job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobMatchTranscript})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	sessionID, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "session_id", sessionID, "attempt", job.Attempts+1, "error", err)
		var (
			exhausted bool
			failErr   error
		)
		if errors.Is(err, matching.ErrMalformedResponse) {
			// Malformed replies are final; the job is not retried.
			exhausted, failErr = true, w.store.AbandonJob(job.ID, err.Error())
		} else {
			exhausted, failErr = w.store.FailJob(job.ID, err.Error())
		}
		if failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
			exhausted = exhausted || job.Attempts+1 >= job.MaxAttempts
		}
		if sessionID != "" {
			status := storage.SessionQueued
			if exhausted {
				status = storage.SessionFailed
			}
			if err := w.store.SetSessionStatus(sessionID, status, err.Error()); err != nil {
				w.logger.Error("failed to update session status", "session_id", sessionID, "error", err)
			}
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type matchPayload struct {
	SessionID string `json:"session_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload matchPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	sess, err := w.store.GetSession(payload.SessionID)
	if err != nil {
		return "", fmt.Errorf("loading session %s: %w", payload.SessionID, err)
	}
	if sess.Status == storage.SessionExported && sess.ExportName != "" {
		w.logger.Info("session already exported", "session_id", sess.ID, "export", sess.ExportName)
		return sess.ID, nil
	}
	if err := w.store.SetSessionStatus(sess.ID, storage.SessionMatching, ""); err != nil {
		return sess.ID, fmt.Errorf("updating session status: %w", err)
	}

	exp, err := sessionExport(sess)
	if err != nil {
		return sess.ID, err
	}

	report, err := w.matcher.Match(ctx, sess.Transcription)
	if err != nil {
		return sess.ID, err
	}
	exp.MatchedQuestions = report.Records
	if cat := w.matcher.Catalog(); cat != nil {
		exp.QuestionnaireTitle = cat.Title()
		exp.QuestionnaireDescription = cat.Description()
	}

	name, err := w.exports.SaveSession(sess.ID, exp)
	if err != nil {
		return sess.ID, fmt.Errorf("saving export: %w", err)
	}
	if err := w.store.MarkSessionExported(sess.ID, name, len(report.Records)); err != nil {
		return sess.ID, fmt.Errorf("recording export: %w", err)
	}

	w.logger.Info("session exported", "session_id", sess.ID, "export", name, "matched", len(report.Records))
	return sess.ID, nil
}

// sessionExport builds the export skeleton for a session. The export
// timestamp is the moment the transcription was submitted.
func sessionExport(sess storage.Session) (survey.SurveyExport, error) {
	exp := survey.SurveyExport{
		Timestamp:     sess.CreatedAt,
		Transcription: sess.Transcription,
	}
	if sess.RespondentJSON != "" {
		var info survey.RespondentInfo
		if err := json.Unmarshal([]byte(sess.RespondentJSON), &info); err != nil {
			return survey.SurveyExport{}, fmt.Errorf("parsing respondent info: %w", err)
		}
		exp.Respondent = &info
	}
	return exp, nil
}

// SessionWriter stores a session together with its job.
type SessionWriter interface {
	SaveSessionWithJob(sess storage.Session, job storage.Job) error
}

// Submit queues a transcription for matching and returns the new session.
func Submit(store SessionWriter, transcription string, respondent *survey.RespondentInfo) (storage.Session, error) {
	if strings.TrimSpace(transcription) == "" {
		return storage.Session{}, ErrEmptyTranscription
	}
	sess := storage.Session{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		Status:        storage.SessionQueued,
		Transcription: transcription,
	}
	if respondent != nil {
		b, err := json.Marshal(respondent)
		if err != nil {
			return storage.Session{}, fmt.Errorf("encoding respondent info: %w", err)
		}
		sess.RespondentJSON = string(b)
	}
	payload, err := json.Marshal(matchPayload{SessionID: sess.ID})
	if err != nil {
		return storage.Session{}, err
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobMatchTranscript,
		PayloadJSON: string(payload),
	}
	if err := store.SaveSessionWithJob(sess, job); err != nil {
		return storage.Session{}, fmt.Errorf("queueing session: %w", err)
	}
	return sess, nil
}
