package gradebook

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"campusattend/internal/apperr"
)

// Repository persists grades in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const gradeColumns = `id, student_id, subject, semester, class_id, marks_internal, marks_external,
	marks_total, max_marks, letter, credits, teacher_id, remarks, created_at, updated_at`

func scanGrade(row interface{ Scan(...any) error }) (Grade, error) {
	var g Grade
	err := row.Scan(&g.ID, &g.StudentID, &g.Subject, &g.Semester, &g.ClassID,
		&g.Internal, &g.External, &g.Total, &g.MaxMarks, &g.Letter, &g.Credits,
		&g.TeacherID, &g.Remarks, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// Upsert writes a grade, replacing any existing entry for the same
// (student, subject, semester). The letter is recomputed on every
// write.
func (r *Repository) Upsert(ctx context.Context, g Grade) (Grade, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.MaxMarks <= 0 {
		g.MaxMarks = 100
	}
	if g.Credits <= 0 {
		g.Credits = 3
	}
	g.Letter = LetterFor(g.Total, g.MaxMarks)

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO grades (id, student_id, subject, semester, class_id, marks_internal,
			marks_external, marks_total, max_marks, letter, credits, teacher_id, remarks)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (student_id, subject, semester) DO UPDATE SET
			marks_internal = EXCLUDED.marks_internal,
			marks_external = EXCLUDED.marks_external,
			marks_total = EXCLUDED.marks_total,
			max_marks = EXCLUDED.max_marks,
			letter = EXCLUDED.letter,
			credits = EXCLUDED.credits,
			teacher_id = EXCLUDED.teacher_id,
			remarks = EXCLUDED.remarks,
			updated_at = NOW()
		RETURNING `+gradeColumns+`
	`, g.ID, g.StudentID, g.Subject, g.Semester, g.ClassID, g.Internal, g.External,
		g.Total, g.MaxMarks, g.Letter, g.Credits, g.TeacherID, g.Remarks)
	saved, err := scanGrade(row)
	if err != nil {
		return Grade{}, apperr.Internal(err)
	}
	return saved, nil
}

// List returns grades with optional filters, ordered by semester then
// subject.
func (r *Repository) List(ctx context.Context, studentID, semester string) ([]Grade, error) {
	var clauses []string
	var args []any
	if studentID != "" {
		args = append(args, studentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if semester != "" {
		args = append(args, semester)
		clauses = append(clauses, fmt.Sprintf("semester = $%d", len(args)))
	}

	query := `SELECT ` + gradeColumns + ` FROM grades`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY semester, subject"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Grade
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// Delete removes a grade by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(err)
	}
	if n == 0 {
		return apperr.NotFound("grade not found")
	}
	return nil
}
