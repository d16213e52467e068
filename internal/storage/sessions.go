package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = `id, created_at, updated_at, status, transcription, respondent_json, export_name, matched_count, last_error`

func (s *Store) SaveSession(sess Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	status := sess.Status
	if status == "" {
		status = SessionQueued
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), status,
		sess.Transcription, sess.RespondentJSON, sess.ExportName, sess.MatchedCount, sess.LastError,
	)
	return err
}

// SaveSessionWithJob stores a session and enqueues its job atomically.
func (s *Store) SaveSessionWithJob(sess Session, job Job) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if _, err := tx.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), SessionQueued,
		sess.Transcription, sess.RespondentJSON, "", 0, "",
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if err := enqueueJob(tx, job); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	return sess, err
}

func (s *Store) ListSessions(limit, offset int) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sess)
	}
	return results, rows.Err()
}

// SetSessionStatus updates status and last_error.
func (s *Store) SetSessionStatus(id, status, lastError string) error {
	return s.updateSession(`UPDATE sessions SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, lastError, time.Now().UTC().Format(time.RFC3339Nano), id)
}

// MarkSessionExported records the export document written for a session.
func (s *Store) MarkSessionExported(id, exportName string, matched int) error {
	return s.updateSession(`UPDATE sessions SET status = ?, export_name = ?, matched_count = ?, last_error = '', updated_at = ? WHERE id = ?`,
		SessionExported, exportName, matched, time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (s *Store) updateSession(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	if err := r.Scan(&sess.ID, &createdAt, &updatedAt, &sess.Status, &sess.Transcription,
		&sess.RespondentJSON, &sess.ExportName, &sess.MatchedCount, &sess.LastError); err != nil {
		return Session{}, err
	}
	var err error
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}
