// Package timetable stores per-class weekly schedules.
package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/apperr"
)

// Period is one timetable slot.
type Period struct {
	StartTime string `json:"startTime"` // "09:00"
	EndTime   string `json:"endTime"`   // "09:50"
	Subject   string `json:"subject"`
	Teacher   string `json:"teacher,omitempty"`
	Room      string `json:"room,omitempty"`
}

// Schedule maps weekday names to their periods.
type Schedule map[string][]Period

// Timetable is the weekly schedule for one class.
type Timetable struct {
	ID         string    `json:"id"`
	ClassName  string    `json:"className"`
	Department string    `json:"department,omitempty"`
	Semester   string    `json:"semester,omitempty"`
	Schedule   Schedule  `json:"schedule"`
	CreatedBy  *string   `json:"createdBy,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates or replaces the timetable for a class name.
func (r *Repository) Upsert(ctx context.Context, t Timetable) (Timetable, error) {
	if t.ClassName == "" {
		return Timetable{}, apperr.Validation("class name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Schedule == nil {
		t.Schedule = Schedule{}
	}
	raw, err := json.Marshal(t.Schedule)
	if err != nil {
		return Timetable{}, apperr.Internal(err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO timetables (id, class_name, department, semester, schedule, created_by, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,TRUE)
		ON CONFLICT (class_name) DO UPDATE SET
			department = EXCLUDED.department,
			semester = EXCLUDED.semester,
			schedule = EXCLUDED.schedule,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id, is_active, created_at, updated_at
	`, t.ID, t.ClassName, t.Department, t.Semester, raw, t.CreatedBy)
	if err := row.Scan(&t.ID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Timetable{}, apperr.Internal(err)
	}
	return t, nil
}

const columns = `id, class_name, department, semester, schedule, created_by, is_active, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Timetable, error) {
	var t Timetable
	var raw []byte
	err := row.Scan(&t.ID, &t.ClassName, &t.Department, &t.Semester, &raw,
		&t.CreatedBy, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Timetable{}, err
	}
	if err := json.Unmarshal(raw, &t.Schedule); err != nil {
		return Timetable{}, err
	}
	return t, nil
}

// List returns all active timetables ordered by class name.
func (r *Repository) List(ctx context.Context) ([]Timetable, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM timetables WHERE is_active = TRUE ORDER BY class_name`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Timetable
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ByClassName returns the active timetable for a class, or nil.
func (r *Repository) ByClassName(ctx context.Context, className string) (*Timetable, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM timetables WHERE class_name = $1 AND is_active = TRUE`, className)
	t, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &t, nil
}

// Delete removes a timetable by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("timetable not found")
	}
	return nil
}
