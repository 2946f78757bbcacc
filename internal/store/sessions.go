package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when turns are appended to, or a report is
// generated from, a session that is no longer active.
var ErrSessionClosed = errors.New("session is no longer active")

const sessionColumns = `id, owner_id, title, status, to_char(report_date, 'YYYY-MM-DD'), created_at, updated_at`

func scanSession(row rowScanner) (Session, error) {
	var item Session
	var owner string
	err := row.Scan(&item.ID, &owner, &item.Title, &item.Status, &item.ReportDate, &item.CreatedAt, &item.UpdatedAt)
	item.OwnerID = OwnerID(owner)
	return item, err
}

// CreateSession inserts the session and its seed turns in one transaction.
func (s *PostgresStore) CreateSession(ctx context.Context, item Session, turns ...Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	status := item.Status
	if status == "" {
		status = SessionActive
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interview_sessions (id, owner_id, title, status, report_date)
		VALUES ($1, $2, $3, $4, $5::date)
	`, item.ID, string(item.OwnerID), item.Title, status, item.ReportDate); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := insertTurns(ctx, tx, item.ID, turns); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

func insertTurns(ctx context.Context, tx *sql.Tx, sessionID string, turns []Turn) error {
	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_turns (session_id, role, content, audio_key)
			VALUES ($1, $2, $3, $4)
		`, sessionID, turn.Role, turn.Content, turn.AudioKey); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, owner OwnerID, sessionID string) (Session, error) {
	item, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE id=$1 AND owner_id=$2
	`, sessionID, string(owner)))
	if err != nil {
		return Session{}, notFound(err)
	}

	turns, err := s.listTurns(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	item.Turns = turns
	return item, nil
}

func (s *PostgresStore) listTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, audio_key, created_at
		FROM session_turns
		WHERE session_id=$1
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	items := make([]Turn, 0)
	for rows.Next() {
		var item Turn
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Role, &item.Content, &item.AudioKey, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return items, nil
}

var sessionOrderColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"reportDate": "report_date",
}

func (s *PostgresStore) ListSessions(ctx context.Context, owner OwnerID, opts ListOptions) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE owner_id=$1`+orderClause(opts, sessionOrderColumns, "updated_at"), string(owner))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]Session, 0)
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return items, nil
}

// lockActiveSession locks the owner's session row and reports ErrNotFound or
// ErrSessionClosed when it cannot take new turns.
func lockActiveSession(ctx context.Context, tx *sql.Tx, owner OwnerID, sessionID string) error {
	var status SessionStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM interview_sessions
		WHERE id=$1 AND owner_id=$2
		FOR UPDATE
	`, sessionID, string(owner)).Scan(&status)
	if err != nil {
		return notFound(err)
	}
	if status != SessionActive {
		return ErrSessionClosed
	}
	return nil
}

// AppendTurns adds turns to an active session owned by owner.
func (s *PostgresStore) AppendTurns(ctx context.Context, owner OwnerID, sessionID string, turns ...Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turns: %w", err)
	}
	defer tx.Rollback()

	if err := lockActiveSession(ctx, tx, owner, sessionID); err != nil {
		return err
	}
	if err := insertTurns(ctx, tx, sessionID, turns); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE interview_sessions SET updated_at=NOW() WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append turns: %w", err)
	}
	return nil
}

// CompleteSession persists the generated report and marks its session
// completed in one transaction. A session yields at most one report.
func (s *PostgresStore) CompleteSession(ctx context.Context, owner OwnerID, title string, report Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete session: %w", err)
	}
	defer tx.Rollback()

	if err := lockActiveSession(ctx, tx, owner, report.SessionID); err != nil {
		return err
	}
	if err := insertReport(ctx, tx, report); err != nil {
		if isUniqueViolation(err) {
			return ErrSessionClosed
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE interview_sessions
		SET status='completed', title=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, report.SessionID, string(owner), title); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, owner OwnerID, sessionID string, status SessionStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interview_sessions SET status=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, sessionID, string(owner), status)
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}
	return affected(result, "update session status")
}
