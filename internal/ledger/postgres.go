package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusattend/internal/apperr"
)

// PostgresStore persists attendance events and student aggregates in
// Postgres. The uq_attendance_key unique index enforces the one-event-
// per-(student, class, day) invariant at the store level.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, student_id, class_id, day, time_in, time_out, status, confidence,
	COALESCE(marked_by::text, ''), is_automated, snapshot_url, remarks, duration_minutes, created_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var evt Event
	var status string
	err := row.Scan(&evt.ID, &evt.StudentID, &evt.ClassID, &evt.Day, &evt.TimeIn, &evt.TimeOut,
		&status, &evt.Confidence, &evt.MarkedBy, &evt.IsAutomated, &evt.SnapshotURL,
		&evt.Remarks, &evt.DurationMinutes, &evt.CreatedAt)
	if err != nil {
		return Event{}, err
	}
	evt.Status = Status(status)
	return evt, nil
}

// InTx runs fn inside a transaction, committing on nil error.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(fmt.Errorf("ledger: begin tx: %w", err))
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(fmt.Errorf("ledger: commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

// LockStudent takes the student row lock that serializes concurrent
// marks for one student, and returns the stored counters.
func (t *pgTx) LockStudent(ctx context.Context, studentID string) (*Aggregate, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT total_classes, attended_classes, late_classes, absent_classes,
		       attendance_percentage, last_attendance_at
		FROM students
		WHERE id = $1
		FOR UPDATE
	`, studentID)
	var agg Aggregate
	err := row.Scan(&agg.TotalClasses, &agg.AttendedClasses, &agg.LateClasses,
		&agg.AbsentClasses, &agg.AttendancePercentage, &agg.LastAttendanceAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &agg, nil
}

func (t *pgTx) EventForKey(ctx context.Context, studentID string, classID *string, day time.Time) (*Event, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE student_id = $1
		  AND COALESCE(class_id, '00000000-0000-0000-0000-000000000000'::uuid) =
		      COALESCE($2::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
		  AND day = $3
	`, studentID, classID, day)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &evt, nil
}

func (t *pgTx) InsertEvent(ctx context.Context, evt Event) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_events
			(id, student_id, class_id, day, time_in, status, confidence, marked_by,
			 is_automated, snapshot_url, remarks, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,'')::uuid,$9,$10,$11,$12)
		ON CONFLICT DO NOTHING
	`, evt.ID, evt.StudentID, evt.ClassID, evt.Day, evt.TimeIn, string(evt.Status),
		evt.Confidence, evt.MarkedBy, evt.IsAutomated, evt.SnapshotURL, evt.Remarks, evt.CreatedAt)
	if err != nil {
		return false, apperr.Internal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err)
	}
	return n == 1, nil
}

func (t *pgTx) CloseEvent(ctx context.Context, evt Event) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE attendance_events
		SET time_out = $2, status = $3, duration_minutes = $4, updated_at = NOW()
		WHERE id = $1
	`, evt.ID, evt.TimeOut, string(evt.Status), evt.DurationMinutes)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (t *pgTx) SaveAggregate(ctx context.Context, studentID string, agg Aggregate) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE students
		SET total_classes = $2, attended_classes = $3, late_classes = $4,
		    absent_classes = $5, attendance_percentage = $6,
		    last_attendance_at = $7, updated_at = NOW()
		WHERE id = $1
	`, studentID, agg.TotalClasses, agg.AttendedClasses, agg.LateClasses,
		agg.AbsentClasses, agg.AttendancePercentage, agg.LastAttendanceAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Event returns a single event by id, or nil.
func (s *PostgresStore) Event(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM attendance_events WHERE id = $1
	`, id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &evt, nil
}

// EventsByStudent returns a student's events, optionally date-bounded,
// newest day first.
func (s *PostgresStore) EventsByStudent(ctx context.Context, studentID string, from, to time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE student_id = $1`
	args := []any{studentID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND day >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND day <= $%d", len(args))
	}
	query += " ORDER BY day DESC, time_in DESC"
	return s.queryEvents(ctx, query, args...)
}

// EventsByDay returns all events on a calendar day, most recent
// time_in first.
func (s *PostgresStore) EventsByDay(ctx context.Context, day time.Time) ([]Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE day = $1
		ORDER BY time_in DESC
	`, day)
}

// Records lists events matching the filter, newest day first.
func (s *PostgresStore) Records(ctx context.Context, f RecordFilter) ([]Event, error) {
	var clauses []string
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.ClassID != "" {
		add("class_id = $%d", f.ClassID)
	}
	if !f.From.IsZero() {
		add("day >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("day <= $%d", f.To)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + eventColumns + ` FROM attendance_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY day DESC, time_in DESC LIMIT $%d", len(args))
	return s.queryEvents(ctx, query, args...)
}

// AggregateOf returns the stored counters, or nil when the student
// does not exist.
func (s *PostgresStore) AggregateOf(ctx context.Context, studentID string) (*Aggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_classes, attended_classes, late_classes, absent_classes,
		       attendance_percentage, last_attendance_at
		FROM students WHERE id = $1
	`, studentID)
	var agg Aggregate
	err := row.Scan(&agg.TotalClasses, &agg.AttendedClasses, &agg.LateClasses,
		&agg.AbsentClasses, &agg.AttendancePercentage, &agg.LastAttendanceAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &agg, nil
}

// UpdateConfidence stores a re-verified match confidence; used by the
// worker after the face service confirms an automated mark.
func (s *PostgresStore) UpdateConfidence(ctx context.Context, eventID string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attendance_events
		SET confidence = $2, updated_at = NOW()
		WHERE id = $1
	`, eventID, confidence)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return res, nil
}
