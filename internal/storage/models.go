package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session states.
const (
	SessionQueued   = "queued"
	SessionMatching = "matching"
	SessionExported = "exported"
	SessionFailed   = "failed"
)

// Session is one submitted transcription and the export it produced.
type Session struct {
	ID             string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         string
	Transcription  string
	RespondentJSON string // JSON object stored as text; empty if none
	ExportName     string
	MatchedCount   int
	LastError      string
}

// Job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is one unit of background work in the queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
