package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
)

// memStore is an in-memory Store used as the deterministic stub for
// ledger tests. A single mutex makes InTx atomic, mirroring the
// serialization the postgres store gets from the student row lock.
type memStore struct {
	mu       sync.Mutex
	students map[string]*Aggregate
	events   map[string]*Event // by id
	byKey    map[string]string // key -> event id
}

func newMemStore(studentIDs ...string) *memStore {
	s := &memStore{
		students: make(map[string]*Aggregate),
		events:   make(map[string]*Event),
		byKey:    make(map[string]string),
	}
	for _, id := range studentIDs {
		s.students[id] = &Aggregate{}
	}
	return s
}

func key(studentID string, classID *string, day time.Time) string {
	cls := ""
	if classID != nil {
		cls = *classID
	}
	return studentID + "|" + cls + "|" + day.Format("2006-01-02")
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

type memTx struct{ s *memStore }

func (t *memTx) LockStudent(ctx context.Context, studentID string) (*Aggregate, error) {
	agg, ok := t.s.students[studentID]
	if !ok {
		return nil, nil
	}
	cp := *agg
	return &cp, nil
}

func (t *memTx) EventForKey(ctx context.Context, studentID string, classID *string, day time.Time) (*Event, error) {
	if id, ok := t.s.byKey[key(studentID, classID, day)]; ok {
		cp := *t.s.events[id]
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) InsertEvent(ctx context.Context, evt Event) (bool, error) {
	k := key(evt.StudentID, evt.ClassID, evt.Day)
	if _, exists := t.s.byKey[k]; exists {
		return false, nil
	}
	cp := evt
	t.s.events[evt.ID] = &cp
	t.s.byKey[k] = evt.ID
	return true, nil
}

func (t *memTx) CloseEvent(ctx context.Context, evt Event) error {
	cp := evt
	t.s.events[evt.ID] = &cp
	return nil
}

func (t *memTx) SaveAggregate(ctx context.Context, studentID string, agg Aggregate) error {
	cp := agg
	t.s.students[studentID] = &cp
	return nil
}

func (s *memStore) Event(ctx context.Context, id string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt, ok := s.events[id]; ok {
		cp := *evt
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) EventsByStudent(ctx context.Context, studentID string, from, to time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Event
	for _, evt := range s.events {
		if evt.StudentID != studentID {
			continue
		}
		if !from.IsZero() && evt.Day.Before(from) {
			continue
		}
		if !to.IsZero() && evt.Day.After(to) {
			continue
		}
		res = append(res, *evt)
	}
	return res, nil
}

func (s *memStore) EventsByDay(ctx context.Context, day time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Event
	for _, evt := range s.events {
		if evt.Day.Equal(day) {
			res = append(res, *evt)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TimeIn.After(res[j].TimeIn) })
	return res, nil
}

func (s *memStore) Records(ctx context.Context, f RecordFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Event
	for _, evt := range s.events {
		if f.StudentID != "" && evt.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && evt.Status != f.Status {
			continue
		}
		res = append(res, *evt)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Day.After(res[j].Day) })
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *memStore) AggregateOf(ctx context.Context, studentID string) (*Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agg, ok := s.students[studentID]; ok {
		cp := *agg
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpdateConfidence(ctx context.Context, eventID string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt, ok := s.events[eventID]; ok {
		evt.Confidence = confidence
	}
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMarkCreatesEventAndGrowsAggregate(t *testing.T) {
	store := newMemStore("stu-1")
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, PolicyCheckout, WithClock(fixedClock(at)))

	res, err := svc.Mark(context.Background(), MarkRequest{
		StudentID: "stu-1", Status: StatusPresent, MarkedBy: "teacher-1",
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, DayOf(at), res.Event.Day)
	assert.Equal(t, at, res.Event.TimeIn)
	assert.Nil(t, res.Event.TimeOut)
	assert.Equal(t, 1, res.Aggregate.TotalClasses)
	assert.Equal(t, 1, res.Aggregate.AttendedClasses)
	assert.Equal(t, 100, res.Aggregate.AttendancePercentage)
	require.NotNil(t, res.Aggregate.LastAttendanceAt)
	assert.Equal(t, at, *res.Aggregate.LastAttendanceAt)
}

func TestMarkValidation(t *testing.T) {
	svc := NewService(newMemStore("stu-1"), PolicyCheckout)

	tests := []struct {
		name string
		req  MarkRequest
		kind apperr.Kind
	}{
		{"missing student", MarkRequest{Status: StatusPresent}, apperr.KindValidation},
		{"bad status", MarkRequest{StudentID: "stu-1", Status: "napping"}, apperr.KindValidation},
		{"confidence above 1", MarkRequest{StudentID: "stu-1", Status: StatusPresent, Confidence: 1.2}, apperr.KindValidation},
		{"negative confidence", MarkRequest{StudentID: "stu-1", Status: StatusPresent, Confidence: -0.1}, apperr.KindValidation},
		{"unknown student", MarkRequest{StudentID: "ghost", Status: StatusPresent}, apperr.KindNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Mark(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestCheckoutPolicySecondMarkClosesEvent(t *testing.T) {
	store := newMemStore("stu-1")
	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := first
	svc := NewService(store, PolicyCheckout, WithClock(func() time.Time { return clock }))

	_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.NoError(t, err)

	clock = first.Add(50 * time.Minute)
	res, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCheckedOut, res.Outcome)
	require.NotNil(t, res.Event.TimeOut)
	assert.Equal(t, clock, *res.Event.TimeOut)
	require.NotNil(t, res.Event.DurationMinutes)
	assert.Equal(t, 50, *res.Event.DurationMinutes)

	// Counters unchanged: no double increment on check-out.
	agg, err := svc.AggregateOf(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalClasses)
	assert.Equal(t, 1, agg.AttendedClasses)
	assert.Equal(t, 100, agg.AttendancePercentage)
}

func TestCheckoutIsTerminalForTheDay(t *testing.T) {
	store := newMemStore("stu-1")
	svc := NewService(store, PolicyCheckout)

	_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.NoError(t, err)
	_, err = svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRejectPolicySecondMarkConflicts(t *testing.T) {
	store := newMemStore("stu-1")
	svc := NewService(store, PolicyReject)

	_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Counters unchanged after the rejected call.
	agg, err := svc.AggregateOf(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalClasses)
}

func TestCounterRulesPerStatus(t *testing.T) {
	tests := []struct {
		status   Status
		attended int
		late     int
		absent   int
		pct      int
	}{
		{StatusPresent, 1, 0, 0, 100},
		{StatusLate, 0, 1, 0, 100}, // late counts in the stored percentage
		{StatusAbsent, 0, 0, 1, 0},
		{StatusLeave, 0, 0, 0, 0},
		{StatusExcused, 0, 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			store := newMemStore("stu-1")
			svc := NewService(store, PolicyCheckout)
			res, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: tc.status})
			require.NoError(t, err)
			assert.Equal(t, 1, res.Aggregate.TotalClasses)
			assert.Equal(t, tc.attended, res.Aggregate.AttendedClasses)
			assert.Equal(t, tc.late, res.Aggregate.LateClasses)
			assert.Equal(t, tc.absent, res.Aggregate.AbsentClasses)
			assert.Equal(t, tc.pct, res.Aggregate.AttendancePercentage)
		})
	}
}

func TestSeparateClassesSameDayAreDistinctKeys(t *testing.T) {
	store := newMemStore("stu-1")
	svc := NewService(store, PolicyReject)
	classA, classB := "class-a", "class-b"

	_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", ClassID: &classA, Status: StatusPresent})
	require.NoError(t, err)
	res, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", ClassID: &classB, Status: StatusPresent})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 2, res.Aggregate.TotalClasses)
}

func TestConcurrentMarksNeverCreateTwoEvents(t *testing.T) {
	store := newMemStore("stu-1")
	svc := NewService(store, PolicyCheckout)

	const n = 16
	var wg sync.WaitGroup
	outcomes := make([]MarkOutcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
			outcomes[i], errs[i] = res.Outcome, err
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil && outcomes[i] == OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one concurrent mark may create")

	events, err := store.EventsByStudent(context.Background(), "stu-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	agg, err := svc.AggregateOf(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalClasses)
}

// insertRaceStore simulates a concurrent winner committing between the
// duplicate check and the insert: the first EventForKey says nothing
// exists, the insert reports a key conflict, and the re-read sees the
// winner's event.
type insertRaceStore struct {
	*memStore
	raced bool
}

type raceTx struct {
	Tx
	s *insertRaceStore
}

func (s *insertRaceStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.memStore.InTx(ctx, func(tx Tx) error {
		return fn(&raceTx{Tx: tx, s: s})
	})
}

func (t *raceTx) EventForKey(ctx context.Context, studentID string, classID *string, day time.Time) (*Event, error) {
	if !t.s.raced {
		return nil, nil // hide the winner's row on the first read
	}
	return t.Tx.EventForKey(ctx, studentID, classID, day)
}

func (t *raceTx) InsertEvent(ctx context.Context, evt Event) (bool, error) {
	t.s.raced = true
	return false, nil // unique index conflict
}

func TestLostInsertRaceFallsToDuplicatePath(t *testing.T) {
	base := newMemStore("stu-1")
	winner := Event{
		ID: "evt-winner", StudentID: "stu-1", Day: DayOf(time.Now().UTC()),
		TimeIn: time.Now().UTC().Add(-10 * time.Minute), Status: StatusPresent,
	}
	require.NoError(t, base.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertEvent(context.Background(), winner)
		return err
	}))

	svc := NewService(&insertRaceStore{memStore: base}, PolicyReject)
	_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestComputeStatsUsesPresentOnlyFormula(t *testing.T) {
	store := newMemStore("stu-1")
	day := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := day
	svc := NewService(store, PolicyCheckout, WithClock(func() time.Time { return clock }))

	// 10 events across 10 days: 7 present, 2 late, 1 absent.
	statuses := []Status{
		StatusPresent, StatusPresent, StatusPresent, StatusPresent,
		StatusPresent, StatusPresent, StatusPresent,
		StatusLate, StatusLate, StatusAbsent,
	}
	for i, st := range statuses {
		clock = day.AddDate(0, 0, i)
		_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: st})
		require.NoError(t, err)
	}

	stats, err := svc.ComputeStats(context.Background(), "stu-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 7, stats.Present)
	assert.Equal(t, 70, stats.Percentage, "stats view counts only present")

	// The stored aggregate keeps its own formula: late counts.
	agg, err := svc.AggregateOf(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 90, agg.AttendancePercentage, "aggregate view counts late")
}

func TestComputeStatsDateBounds(t *testing.T) {
	store := newMemStore("stu-1")
	day := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := day
	svc := NewService(store, PolicyCheckout, WithClock(func() time.Time { return clock }))

	for i := 0; i < 6; i++ {
		clock = day.AddDate(0, 0, i)
		_, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: StatusPresent})
		require.NoError(t, err)
	}

	stats, err := svc.ComputeStats(context.Background(), "stu-1",
		day.AddDate(0, 0, 2), day.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestPercentageBounds(t *testing.T) {
	store := newMemStore("stu-1")
	day := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := day
	svc := NewService(store, PolicyCheckout, WithClock(func() time.Time { return clock }))

	// Zero events: percentage is 0, not a division error.
	agg, err := svc.AggregateOf(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.AttendancePercentage)

	statuses := []Status{StatusPresent, StatusAbsent, StatusLeave, StatusLate, StatusExcused, StatusAbsent, StatusPresent}
	for i, st := range statuses {
		clock = day.AddDate(0, 0, i)
		res, err := svc.Mark(context.Background(), MarkRequest{StudentID: "stu-1", Status: st})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Aggregate.AttendancePercentage, 0)
		assert.LessOrEqual(t, res.Aggregate.AttendancePercentage, 100)
	}
}

func TestDailySummaryGroupsAndOrders(t *testing.T) {
	store := newMemStore("s1", "s2", "s3")
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := base
	svc := NewService(store, PolicyReject, WithClock(func() time.Time { return clock }))

	marks := []struct {
		student string
		status  Status
		offset  time.Duration
	}{
		{"s1", StatusPresent, 0},
		{"s2", StatusLate, 10 * time.Minute},
		{"s3", StatusAbsent, 20 * time.Minute},
	}
	for _, m := range marks {
		clock = base.Add(m.offset)
		_, err := svc.Mark(context.Background(), MarkRequest{StudentID: m.student, Status: m.status})
		require.NoError(t, err)
	}

	sum, err := svc.DailySummary(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalPresent)
	assert.Equal(t, 1, sum.TotalLate)
	assert.Equal(t, 1, sum.TotalAbsent)
	require.Len(t, sum.Records, 3)
	assert.Equal(t, "s3", sum.Records[0].StudentID, "most recent time_in first")
	assert.Equal(t, "s1", sum.Records[2].StudentID)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("checkout")
	require.NoError(t, err)
	assert.Equal(t, PolicyCheckout, p)

	p, err = ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParsePolicy("merge")
	require.Error(t, err)
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2025, 3, 10, 23, 45, 0, 0, loc) // 18:15 UTC
	day := DayOf(at)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), day)
}
