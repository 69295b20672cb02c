// Package transport manages bus routes and the transport notice board.
package transport

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/apperr"
)

// Route is one bus route with its stops.
type Route struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Timing    string    `json:"timing"`
	Stops     []string  `json:"stops"`
	WhatsApp  string    `json:"whatsapp,omitempty"`
	Color     string    `json:"color"`
	IsActive  bool      `json:"isActive"`
	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notice is a transport-board post.
type Notice struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Priority   string    `json:"priority"`
	AuthorName string    `json:"authorName"`
	CreatedBy  *string   `json:"createdBy,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

var noticePriorities = map[string]bool{"normal": true, "high": true, "urgent": true}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const routeColumns = `id, number, name, timing, stops, whatsapp, color, is_active, created_by, created_at, updated_at`

func scanRoute(row interface{ Scan(...any) error }) (Route, error) {
	var rt Route
	var stops []byte
	err := row.Scan(&rt.ID, &rt.Number, &rt.Name, &rt.Timing, &stops, &rt.WhatsApp,
		&rt.Color, &rt.IsActive, &rt.CreatedBy, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return Route{}, err
	}
	if err := json.Unmarshal(stops, &rt.Stops); err != nil {
		return Route{}, err
	}
	return rt, nil
}

// CreateRoute persists a new bus route.
func (r *Repository) CreateRoute(ctx context.Context, rt Route) (Route, error) {
	if rt.Number == "" || rt.Name == "" || rt.Timing == "" {
		return Route{}, apperr.Validation("number, name and timing are required")
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	if rt.Color == "" {
		rt.Color = "#6366f1"
	}
	if rt.Stops == nil {
		rt.Stops = []string{}
	}
	stops, err := json.Marshal(rt.Stops)
	if err != nil {
		return Route{}, apperr.Internal(err)
	}
	rt.IsActive = true

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO bus_routes (id, number, name, timing, stops, whatsapp, color, is_active, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,$8)
		RETURNING created_at, updated_at
	`, rt.ID, rt.Number, rt.Name, rt.Timing, stops, rt.WhatsApp, rt.Color, rt.CreatedBy)
	if err := row.Scan(&rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return Route{}, apperr.Internal(err)
	}
	return rt, nil
}

// UpdateRoute overwrites mutable route fields.
func (r *Repository) UpdateRoute(ctx context.Context, rt Route) (Route, error) {
	stops, err := json.Marshal(rt.Stops)
	if err != nil {
		return Route{}, apperr.Internal(err)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE bus_routes
		SET number = $2, name = $3, timing = $4, stops = $5, whatsapp = $6,
		    color = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+routeColumns+`
	`, rt.ID, rt.Number, rt.Name, rt.Timing, stops, rt.WhatsApp, rt.Color, rt.IsActive)
	saved, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, apperr.NotFound("route not found")
	}
	if err != nil {
		return Route{}, apperr.Internal(err)
	}
	return saved, nil
}

// RouteByID returns a route or nil.
func (r *Repository) RouteByID(ctx context.Context, id string) (*Route, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM bus_routes WHERE id = $1`, id)
	rt, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &rt, nil
}

// ListRoutes returns active routes ordered by number.
func (r *Repository) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+routeColumns+` FROM bus_routes WHERE is_active = TRUE ORDER BY number`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

// DeleteRoute removes a route.
func (r *Repository) DeleteRoute(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bus_routes WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("route not found")
	}
	return nil
}

// CreateNotice persists a transport notice.
func (r *Repository) CreateNotice(ctx context.Context, n Notice) (Notice, error) {
	if n.Title == "" || n.Content == "" {
		return Notice{}, apperr.Validation("title and content are required")
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}
	if !noticePriorities[n.Priority] {
		return Notice{}, apperr.Validation(fmt.Sprintf("invalid priority %q", n.Priority))
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.AuthorName == "" {
		n.AuthorName = "Transport Incharge"
	}
	n.IsActive = true

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO bus_notices (id, title, content, priority, author_name, created_by, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,TRUE)
		RETURNING created_at
	`, n.ID, n.Title, n.Content, n.Priority, n.AuthorName, n.CreatedBy)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return Notice{}, apperr.Internal(err)
	}
	return n, nil
}

// ListNotices returns active notices, newest first.
func (r *Repository) ListNotices(ctx context.Context) ([]Notice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, priority, author_name, created_by, is_active, created_at
		FROM bus_notices WHERE is_active = TRUE ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	var res []Notice
	for rows.Next() {
		var n Notice
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Priority, &n.AuthorName,
			&n.CreatedBy, &n.IsActive, &n.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// DeleteNotice removes a notice.
func (r *Repository) DeleteNotice(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bus_notices WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notice not found")
	}
	return nil
}
