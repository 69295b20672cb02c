package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/ledger"
	"campusattend/internal/queue"
)

// fakeLedgerStore is a minimal in-memory ledger.Store for handler
// tests. One student, events keyed by (class, day).
type fakeLedgerStore struct {
	mu     sync.Mutex
	agg    ledger.Aggregate
	events map[string]*ledger.Event
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{events: make(map[string]*ledger.Event)}
}

func eventKey(classID *string, day time.Time) string {
	cls := ""
	if classID != nil {
		cls = *classID
	}
	return cls + "|" + day.Format("2006-01-02")
}

func (f *fakeLedgerStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{f: f})
}

type fakeTx struct{ f *fakeLedgerStore }

func (t *fakeTx) LockStudent(ctx context.Context, studentID string) (*ledger.Aggregate, error) {
	if studentID != "stu-1" {
		return nil, nil
	}
	cp := t.f.agg
	return &cp, nil
}

func (t *fakeTx) EventForKey(ctx context.Context, studentID string, classID *string, day time.Time) (*ledger.Event, error) {
	if evt, ok := t.f.events[eventKey(classID, day)]; ok {
		cp := *evt
		return &cp, nil
	}
	return nil, nil
}

func (t *fakeTx) InsertEvent(ctx context.Context, evt ledger.Event) (bool, error) {
	k := eventKey(evt.ClassID, evt.Day)
	if _, exists := t.f.events[k]; exists {
		return false, nil
	}
	cp := evt
	t.f.events[k] = &cp
	return true, nil
}

func (t *fakeTx) CloseEvent(ctx context.Context, evt ledger.Event) error {
	cp := evt
	t.f.events[eventKey(evt.ClassID, evt.Day)] = &cp
	return nil
}

func (t *fakeTx) SaveAggregate(ctx context.Context, studentID string, agg ledger.Aggregate) error {
	t.f.agg = agg
	return nil
}

func (f *fakeLedgerStore) Event(ctx context.Context, id string) (*ledger.Event, error) {
	return nil, nil
}

func (f *fakeLedgerStore) EventsByStudent(ctx context.Context, studentID string, from, to time.Time) ([]ledger.Event, error) {
	return nil, nil
}

func (f *fakeLedgerStore) EventsByDay(ctx context.Context, day time.Time) ([]ledger.Event, error) {
	return nil, nil
}

func (f *fakeLedgerStore) Records(ctx context.Context, filter ledger.RecordFilter) ([]ledger.Event, error) {
	return nil, nil
}

func (f *fakeLedgerStore) AggregateOf(ctx context.Context, studentID string) (*ledger.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.agg
	return &cp, nil
}

func (f *fakeLedgerStore) UpdateConfidence(ctx context.Context, eventID string, confidence float64) error {
	return nil
}

func testServer(t *testing.T, policy ledger.DuplicatePolicy) (*gin.Engine, config.App) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:       "campusattend",
		JWTSigningKey:   "handler-test-key",
		TokenTTL:        time.Hour,
		RateLimitPerMin: 10000,
	}
	led := ledger.NewService(newFakeLedgerStore(), policy)
	srv := New(cfg, led, nil, nil, nil, nil, nil, queue.NewInMemory(4), nil, nil, nil, func() bool { return true })
	return srv.Router(), cfg
}

func bearerFor(t *testing.T, cfg config.App, userID, role string) string {
	t.Helper()
	token, _, err := auth.Issue(userID, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
	require.NoError(t, err)
	return "Bearer " + token
}

func postMark(r *gin.Engine, bearer, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/attendance/mark", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestMarkRequiresToken(t *testing.T) {
	r, _ := testServer(t, ledger.PolicyCheckout)
	w := postMark(r, "", `{"studentId":"stu-1","status":"present"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMarkCreatesThenChecksOut(t *testing.T) {
	r, cfg := testServer(t, ledger.PolicyCheckout)
	bearer := bearerFor(t, cfg, "teacher-1", "teacher")

	w := postMark(r, bearer, `{"studentId":"stu-1","status":"present"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "created", created.Outcome)

	w = postMark(r, bearer, `{"studentId":"stu-1","status":"present"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var checkedOut struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkedOut))
	assert.Equal(t, "checked_out", checkedOut.Outcome)
}

func TestMarkRejectPolicyConflicts(t *testing.T) {
	r, cfg := testServer(t, ledger.PolicyReject)
	bearer := bearerFor(t, cfg, "teacher-1", "teacher")

	w := postMark(r, bearer, `{"studentId":"stu-1","status":"present"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postMark(r, bearer, `{"studentId":"stu-1","status":"present"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Message)
}

func TestMarkValidatesInput(t *testing.T) {
	r, cfg := testServer(t, ledger.PolicyCheckout)
	bearer := bearerFor(t, cfg, "teacher-1", "teacher")

	// Teacher must name a student.
	w := postMark(r, bearer, `{"status":"present"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown status.
	w = postMark(r, bearer, `{"studentId":"stu-1","status":"napping"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown student.
	w = postMark(r, bearer, `{"studentId":"ghost","status":"present"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
