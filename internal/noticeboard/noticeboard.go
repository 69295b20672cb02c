// Package noticeboard stores school-wide announcements.
package noticeboard

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

// Announcement is a staff post visible to authenticated users.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorRole  string    `json:"authorRole"`
	TargetClass *string   `json:"targetClass,omitempty"`
	Priority    string    `json:"priority"`
	Category    string    `json:"category"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

var (
	priorities = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}
	categories = map[string]bool{"general": true, "academic": true, "exam": true, "event": true, "holiday": true}
)

// Validate checks field constraints before persistence.
func (a Announcement) Validate() error {
	if a.Title == "" || len(a.Title) > 200 {
		return apperr.Validation("title is required (max 200 chars)")
	}
	if a.Content == "" || len(a.Content) > 5000 {
		return apperr.Validation("content is required (max 5000 chars)")
	}
	if a.Priority != "" && !priorities[a.Priority] {
		return apperr.Validation(fmt.Sprintf("invalid priority %q", a.Priority))
	}
	if a.Category != "" && !categories[a.Category] {
		return apperr.Validation(fmt.Sprintf("invalid category %q", a.Category))
	}
	return nil
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, title, content, author_id, author_name, author_role, target_class,
	priority, category, is_active, created_at`

// Create persists an announcement.
func (r *Repository) Create(ctx context.Context, a Announcement) (Announcement, error) {
	if err := a.Validate(); err != nil {
		return Announcement{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Priority == "" {
		a.Priority = "normal"
	}
	if a.Category == "" {
		a.Category = "general"
	}
	a.IsActive = true

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO announcements (id, title, content, author_id, author_name, author_role,
			target_class, priority, category, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, a.ID, a.Title, a.Content, a.AuthorID, a.AuthorName, a.AuthorRole,
		a.TargetClass, a.Priority, a.Category, a.IsActive)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return Announcement{}, apperr.Internal(err)
	}
	return a, nil
}

// List returns active announcements, newest first, optionally filtered
// by category.
func (r *Repository) List(ctx context.Context, category string, limit int) ([]Announcement, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var clauses = []string{"is_active = TRUE"}
	var args []any
	if category != "" {
		args = append(args, category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	args = append(args, limit)
	query := `SELECT ` + columns + ` FROM announcements WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.AuthorID, &a.AuthorName,
			&a.AuthorRole, &a.TargetClass, &a.Priority, &a.Category, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Get returns an announcement or nil.
func (r *Repository) Get(ctx context.Context, id string) (*Announcement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM announcements WHERE id = $1`, id)
	var a Announcement
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.AuthorID, &a.AuthorName,
		&a.AuthorRole, &a.TargetClass, &a.Priority, &a.Category, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &a, nil
}

// Delete removes an announcement.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("announcement not found")
	}
	return nil
}
