// Package ledger owns the attendance rules: one event per
// (student, class, day), the duplicate-mark policy, and the derived
// per-student counters. All state lives in the backing store; the
// service itself is stateless and safe for concurrent use.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"campusattend/internal/apperr"
)

// Status enumerates attendance outcomes.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusLeave   Status = "leave"
	StatusExcused Status = "excused"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusLeave, StatusExcused:
		return true
	}
	return false
}

// DuplicatePolicy decides what a second mark for an already-recorded
// key means. Exactly one policy is in force per deployment.
type DuplicatePolicy string

const (
	// PolicyCheckout treats the second mark as a check-out: it sets
	// timeOut, overwrites status and recomputes the duration.
	PolicyCheckout DuplicatePolicy = "checkout"

	// PolicyReject refuses the second mark with a Conflict error.
	PolicyReject DuplicatePolicy = "reject"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case PolicyCheckout, PolicyReject:
		return DuplicatePolicy(s), nil
	}
	return "", fmt.Errorf("ledger: unknown duplicate policy %q", s)
}

// Event is one attendance record. At most one exists per
// (StudentID, ClassID, Day); a same-day check-out mutates it once more
// and it is immutable thereafter.
type Event struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"studentId"`
	ClassID         *string    `json:"classId,omitempty"`
	Day             time.Time  `json:"day"`
	TimeIn          time.Time  `json:"timeIn"`
	TimeOut         *time.Time `json:"timeOut,omitempty"`
	Status          Status     `json:"status"`
	Confidence      float64    `json:"confidence"`
	MarkedBy        string     `json:"markedBy"`
	IsAutomated     bool       `json:"isAutomated"`
	SnapshotURL     string     `json:"snapshotUrl,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Aggregate holds the running per-student counters. Counters only ever
// grow; there is no unmark operation.
type Aggregate struct {
	TotalClasses         int        `json:"totalClasses"`
	AttendedClasses      int        `json:"attendedClasses"`
	LateClasses          int        `json:"lateClasses"`
	AbsentClasses        int        `json:"absentClasses"`
	AttendancePercentage int        `json:"attendancePercentage"`
	LastAttendanceAt     *time.Time `json:"lastAttendanceAt,omitempty"`
}

// recompute derives the stored percentage: late counts toward
// attendance here, unlike the Stats view. Both formulas are live in
// different endpoints and must stay separate.
func (a *Aggregate) recompute() {
	if a.TotalClasses == 0 {
		a.AttendancePercentage = 0
		return
	}
	a.AttendancePercentage = roundPct(a.AttendedClasses+a.LateClasses, a.TotalClasses)
}

// apply counts a newly created event. Leave and excused grow only the
// total.
func (a *Aggregate) apply(status Status, at time.Time) {
	a.TotalClasses++
	switch status {
	case StatusPresent:
		a.AttendedClasses++
	case StatusLate:
		a.LateClasses++
	case StatusAbsent:
		a.AbsentClasses++
	}
	a.recompute()
	t := at
	a.LastAttendanceAt = &t
}

// Stats is the scan-based statistics view. Its percentage counts only
// present marks, which intentionally differs from the stored aggregate.
type Stats struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Late       int `json:"late"`
	Absent     int `json:"absent"`
	Leave      int `json:"leave"`
	Excused    int `json:"excused"`
	Percentage int `json:"percentage"`
}

// Summary is the per-day roll-up.
type Summary struct {
	Day          time.Time `json:"day"`
	TotalPresent int       `json:"totalPresent"`
	TotalLate    int       `json:"totalLate"`
	TotalAbsent  int       `json:"totalAbsent"`
	TotalLeave   int       `json:"totalLeave"`
	TotalExcused int       `json:"totalExcused"`
	Records      []Event   `json:"records"`
}

// MarkRequest is the input to Mark.
type MarkRequest struct {
	StudentID   string
	ClassID     *string
	Status      Status
	Confidence  float64
	MarkedBy    string
	IsAutomated bool
	SnapshotURL string
	Remarks     string
}

// MarkOutcome distinguishes the two accepted results of Mark.
type MarkOutcome string

const (
	OutcomeCreated    MarkOutcome = "created"
	OutcomeCheckedOut MarkOutcome = "checked_out"
)

// MarkResult is the accepted event plus what happened to it.
type MarkResult struct {
	Outcome   MarkOutcome
	Event     Event
	Aggregate Aggregate
}

// RecordFilter bounds a Records query. Zero values mean "no filter".
type RecordFilter struct {
	StudentID string
	ClassID   string
	From      time.Time
	To        time.Time
	Status    Status
	Limit     int
}

// Tx is the transactional view of the store used by Mark. LockStudent
// serializes concurrent marks for one student; the unique index on the
// event key backstops the race for insertions.
type Tx interface {
	// LockStudent row-locks the student and returns its aggregate, or
	// nil when the student does not exist.
	LockStudent(ctx context.Context, studentID string) (*Aggregate, error)

	// EventForKey returns the event for (student, class, day) or nil.
	EventForKey(ctx context.Context, studentID string, classID *string, day time.Time) (*Event, error)

	// InsertEvent writes a new event. It reports false without error
	// when the unique key already exists.
	InsertEvent(ctx context.Context, evt Event) (bool, error)

	// CloseEvent applies a check-out mutation.
	CloseEvent(ctx context.Context, evt Event) error

	// SaveAggregate persists the student's counters.
	SaveAggregate(ctx context.Context, studentID string, agg Aggregate) error
}

// Store is the durable persistence contract for the ledger.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Event(ctx context.Context, id string) (*Event, error)
	EventsByStudent(ctx context.Context, studentID string, from, to time.Time) ([]Event, error)
	EventsByDay(ctx context.Context, day time.Time) ([]Event, error)
	Records(ctx context.Context, f RecordFilter) ([]Event, error)
	AggregateOf(ctx context.Context, studentID string) (*Aggregate, error)
	UpdateConfidence(ctx context.Context, eventID string, confidence float64) error
}

// Cache is an optional read-through cache for daily summaries. Any Get
// error is treated as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Service applies the attendance rules on top of a Store.
type Service struct {
	store    Store
	policy   DuplicatePolicy
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables daily-summary caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service with the given duplicate policy.
func NewService(store Store, policy DuplicatePolicy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DayOf strips the time of day, yielding the idempotence key component.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mark records attendance for today. The whole check-then-write runs in
// one store transaction: the event write and the aggregate update
// either both land or neither does, and two concurrent marks for the
// same key can never both create.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	if req.StudentID == "" {
		return MarkResult{}, apperr.Validation("student is required")
	}
	if !req.Status.Valid() {
		return MarkResult{}, apperr.Validation(fmt.Sprintf("invalid status %q", req.Status))
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return MarkResult{}, apperr.Validation("confidence must be within [0,1]")
	}

	now := s.now()
	day := DayOf(now)

	var result MarkResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		agg, err := tx.LockStudent(ctx, req.StudentID)
		if err != nil {
			return err
		}
		if agg == nil {
			return apperr.NotFound("student not found")
		}

		existing, err := tx.EventForKey(ctx, req.StudentID, req.ClassID, day)
		if err != nil {
			return err
		}

		if existing == nil {
			evt := Event{
				ID:          newID(),
				StudentID:   req.StudentID,
				ClassID:     req.ClassID,
				Day:         day,
				TimeIn:      now,
				Status:      req.Status,
				Confidence:  req.Confidence,
				MarkedBy:    req.MarkedBy,
				IsAutomated: req.IsAutomated,
				SnapshotURL: req.SnapshotURL,
				Remarks:     req.Remarks,
				CreatedAt:   now,
			}
			inserted, err := tx.InsertEvent(ctx, evt)
			if err != nil {
				return err
			}
			if inserted {
				agg.apply(req.Status, now)
				if err := tx.SaveAggregate(ctx, req.StudentID, *agg); err != nil {
					return err
				}
				result = MarkResult{Outcome: OutcomeCreated, Event: evt, Aggregate: *agg}
				return nil
			}
			// Lost the insert race to a concurrent mark that committed
			// between our read and write. Re-read and fall through to
			// the duplicate path.
			existing, err = tx.EventForKey(ctx, req.StudentID, req.ClassID, day)
			if err != nil {
				return err
			}
			if existing == nil {
				return apperr.Internal(fmt.Errorf("ledger: event vanished after insert conflict"))
			}
		}

		if s.policy == PolicyReject {
			return apperr.Conflict("attendance already marked for today")
		}
		if existing.TimeOut != nil {
			// Closed is terminal for the day.
			return apperr.Conflict("attendance already checked out for today")
		}

		out := now
		minutes := int(math.Round(out.Sub(existing.TimeIn).Minutes()))
		existing.TimeOut = &out
		existing.Status = req.Status
		existing.DurationMinutes = &minutes
		if err := tx.CloseEvent(ctx, *existing); err != nil {
			return err
		}
		result = MarkResult{Outcome: OutcomeCheckedOut, Event: *existing, Aggregate: *agg}
		return nil
	})
	if err != nil {
		return MarkResult{}, err
	}

	s.invalidateSummary(ctx, day)
	return result, nil
}

// ComputeStats scans a student's events and tallies per status. The
// percentage here counts only present marks; see Aggregate.recompute
// for the stored formula.
func (s *Service) ComputeStats(ctx context.Context, studentID string, from, to time.Time) (Stats, error) {
	if studentID == "" {
		return Stats{}, apperr.Validation("student is required")
	}
	agg, err := s.store.AggregateOf(ctx, studentID)
	if err != nil {
		return Stats{}, err
	}
	if agg == nil {
		return Stats{}, apperr.NotFound("student not found")
	}

	events, err := s.store.EventsByStudent(ctx, studentID, from, to)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, evt := range events {
		st.Total++
		switch evt.Status {
		case StatusPresent:
			st.Present++
		case StatusLate:
			st.Late++
		case StatusAbsent:
			st.Absent++
		case StatusLeave:
			st.Leave++
		case StatusExcused:
			st.Excused++
		}
	}
	if st.Total > 0 {
		st.Percentage = roundPct(st.Present, st.Total)
	}
	return st, nil
}

// ClassStats tallies a class's events with the same present-only
// percentage the per-student stats view uses.
func (s *Service) ClassStats(ctx context.Context, classID string, from, to time.Time) (Stats, error) {
	if classID == "" {
		return Stats{}, apperr.Validation("class is required")
	}
	events, err := s.store.Records(ctx, RecordFilter{ClassID: classID, From: from, To: to, Limit: 10000})
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, evt := range events {
		st.Total++
		switch evt.Status {
		case StatusPresent:
			st.Present++
		case StatusLate:
			st.Late++
		case StatusAbsent:
			st.Absent++
		case StatusLeave:
			st.Leave++
		case StatusExcused:
			st.Excused++
		}
	}
	if st.Total > 0 {
		st.Percentage = roundPct(st.Present, st.Total)
	}
	return st, nil
}

// AggregateOf returns the stored counters for a student.
func (s *Service) AggregateOf(ctx context.Context, studentID string) (Aggregate, error) {
	agg, err := s.store.AggregateOf(ctx, studentID)
	if err != nil {
		return Aggregate{}, err
	}
	if agg == nil {
		return Aggregate{}, apperr.NotFound("student not found")
	}
	return *agg, nil
}

// Records lists events matching the filter, newest day first.
func (s *Service) Records(ctx context.Context, f RecordFilter) ([]Event, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", f.Status))
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.Records(ctx, f)
}

// DailySummary groups the day's events by status, most recent first.
func (s *Service) DailySummary(ctx context.Context, day time.Time) (Summary, error) {
	day = DayOf(day)
	key := summaryKey(day)

	if s.cache != nil {
		var cached Summary
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	events, err := s.store.EventsByDay(ctx, day)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Day: day, Records: events}
	for _, evt := range events {
		switch evt.Status {
		case StatusPresent:
			sum.TotalPresent++
		case StatusLate:
			sum.TotalLate++
		case StatusAbsent:
			sum.TotalAbsent++
		case StatusLeave:
			sum.TotalLeave++
		case StatusExcused:
			sum.TotalExcused++
		}
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, sum, s.cacheTTL)
	}
	return sum, nil
}

func (s *Service) invalidateSummary(ctx context.Context, day time.Time) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, summaryKey(day))
}

func summaryKey(day time.Time) string {
	return "attendance:summary:" + day.Format("2006-01-02")
}

func roundPct(num, den int) int {
	return int(math.Round(float64(num) / float64(den) * 100))
}
