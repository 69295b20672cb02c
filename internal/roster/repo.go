package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/apperr"
)

// Repository persists roster data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, email, password_hash, role, first_name, last_name, profile_image, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.FirstName, &u.LastName, &u.ProfileImage, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a user and, for student/teacher roles, the
// matching profile row, all in one transaction. A taken username or
// email yields Conflict.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, apperr.Internal(err)
	}
	defer tx.Rollback()

	var taken int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`,
		u.Username, u.Email).Scan(&taken)
	if err != nil {
		return User{}, apperr.Internal(err)
	}
	if taken > 0 {
		return User{}, apperr.Conflict("user already exists")
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, first_name, last_name, profile_image)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.ProfileImage)
	if err := row.Scan(&u.CreatedAt); err != nil {
		return User{}, apperr.Internal(err)
	}

	switch u.Role {
	case RoleStudent:
		code := "STU-" + strings.ToUpper(u.ID[:8])
		_, err = tx.ExecContext(ctx, `
			INSERT INTO students (id, user_id, student_code) VALUES ($1,$2,$3)
		`, uuid.NewString(), u.ID, code)
	case RoleTeacher:
		code := "EMP-" + strings.ToUpper(u.ID[:8])
		_, err = tx.ExecContext(ctx, `
			INSERT INTO teachers (id, user_id, employee_code) VALUES ($1,$2,$3)
		`, uuid.NewString(), u.ID, code)
	}
	if err != nil {
		return User{}, apperr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, apperr.Internal(err)
	}
	return u, nil
}

// UserByUsername returns a user or nil.
func (r *Repository) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &u, nil
}

// UserByID returns a user or nil.
func (r *Repository) UserByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &u, nil
}

// ListUsers returns users, optionally filtered by role, newest first.
func (r *Repository) ListUsers(ctx context.Context, role string) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

const studentColumns = `id, user_id, student_code, roll_number, department, semester,
	face_descriptor, face_registered_at, status, created_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.UserID, &s.StudentCode, &s.RollNumber, &s.Department,
		&s.Semester, &s.FaceDescriptor, &s.FaceRegisteredAt, &s.Status, &s.CreatedAt)
	return s, err
}

// StudentByUserID resolves the profile behind an account, or nil.
func (r *Repository) StudentByUserID(ctx context.Context, userID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// StudentByID returns a student or nil.
func (r *Repository) StudentByID(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// SaveFaceDescriptor enrolls a student's face descriptor. Enrolment is
// one-time: a second attempt conflicts.
func (r *Repository) SaveFaceDescriptor(ctx context.Context, studentID string, descriptor []byte) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET face_descriptor = $2, face_registered_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND face_descriptor IS NULL
	`, studentID, descriptor)
	if err != nil {
		return apperr.Internal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(err)
	}
	if n == 0 {
		existing, err := r.StudentByID(ctx, studentID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.NotFound("student not found")
		}
		return apperr.Conflict("face already registered")
	}
	return nil
}

// FaceGallery lists enrolled descriptors with student identity, the
// payload browsers match against.
func (r *Repository) FaceGallery(ctx context.Context) ([]GalleryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_code, TRIM(u.first_name || ' ' || u.last_name), s.department, s.face_descriptor
		FROM students s
		JOIN users u ON u.id = s.user_id
		WHERE s.face_descriptor IS NOT NULL
		ORDER BY s.student_code
	`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []GalleryEntry
	for rows.Next() {
		var g GalleryEntry
		if err := rows.Scan(&g.StudentID, &g.StudentCode, &g.Name, &g.Department, &g.Descriptor); err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// CreateClass inserts a class; duplicate class codes conflict.
func (r *Repository) CreateClass(ctx context.Context, c Class) (Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, class_name, class_code, teacher_id, semester, department, academic_year)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (class_code) DO NOTHING
		RETURNING created_at
	`, c.ID, c.ClassName, c.ClassCode, c.TeacherID, c.Semester, c.Department, c.AcademicYear)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, apperr.Conflict("class code already exists")
		}
		return Class{}, apperr.Internal(err)
	}
	return c, nil
}

// ListClasses returns all classes ordered by code.
func (r *Repository) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_name, class_code, teacher_id, semester, department, academic_year, created_at
		FROM classes ORDER BY class_code
	`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.ClassName, &c.ClassCode, &c.TeacherID,
			&c.Semester, &c.Department, &c.AcademicYear, &c.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClassByID returns a class or nil.
func (r *Repository) ClassByID(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_name, class_code, teacher_id, semester, department, academic_year, created_at
		FROM classes WHERE id = $1
	`, id)
	var c Class
	err := row.Scan(&c.ID, &c.ClassName, &c.ClassCode, &c.TeacherID,
		&c.Semester, &c.Department, &c.AcademicYear, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &c, nil
}

// Dashboard gathers the admin overview counts.
func (r *Repository) Dashboard(ctx context.Context, today time.Time) (DashboardStats, error) {
	var st DashboardStats
	counts := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&st.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&st.TotalStudents, `SELECT COUNT(*) FROM students`, nil},
		{&st.TotalTeachers, `SELECT COUNT(*) FROM teachers`, nil},
		{&st.TotalClasses, `SELECT COUNT(*) FROM classes`, nil},
		{&st.TotalAttendance, `SELECT COUNT(*) FROM attendance_events`, nil},
		{&st.TodayAttendance, `SELECT COUNT(*) FROM attendance_events WHERE day = $1`, []any{today}},
		{&st.PresentToday, `SELECT COUNT(*) FROM attendance_events WHERE day = $1 AND status = 'present'`, []any{today}},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return DashboardStats{}, apperr.Internal(fmt.Errorf("roster: dashboard count: %w", err))
		}
	}
	return st, nil
}
