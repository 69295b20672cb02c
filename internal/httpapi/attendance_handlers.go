package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/ledger"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
)

type markRequest struct {
	StudentID   string  `json:"studentId"`
	ClassID     *string `json:"classId"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	IsAutomated bool    `json:"isAutomated"`
	SnapshotURL string  `json:"snapshotUrl"`
	Remarks     string  `json:"remarks"`
}

// handleMark accepts a mark for a student. Students mark themselves;
// teachers and admins mark anyone.
func (s *Server) handleMark(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.Status == "" {
		req.Status = string(ledger.StatusPresent)
	}

	studentID, err := s.resolveMarkTarget(c.Request.Context(), claims, req.StudentID)
	if err != nil {
		fail(c, err)
		return
	}

	if req.ClassID != nil {
		class, err := s.roster.ClassByID(c.Request.Context(), *req.ClassID)
		if err != nil {
			fail(c, err)
			return
		}
		if class == nil {
			fail(c, apperr.NotFound("class not found"))
			return
		}
	}

	res, err := s.ledger.Mark(c.Request.Context(), ledger.MarkRequest{
		StudentID:   studentID,
		ClassID:     req.ClassID,
		Status:      ledger.Status(req.Status),
		Confidence:  req.Confidence,
		MarkedBy:    claims.UserID,
		IsAutomated: req.IsAutomated,
		SnapshotURL: req.SnapshotURL,
		Remarks:     req.Remarks,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			metrics.MarksTotal.WithLabelValues("conflict").Inc()
		}
		fail(c, err)
		return
	}
	metrics.MarksTotal.WithLabelValues(string(res.Outcome)).Inc()

	// Automated marks with a snapshot get re-verified by the worker.
	if res.Outcome == ledger.OutcomeCreated && req.IsAutomated && req.SnapshotURL != "" {
		job := queue.VerifyJob{EventID: res.Event.ID, StudentID: studentID, SnapshotURL: req.SnapshotURL}
		if err := s.queue.Publish(c.Request.Context(), job); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	status := http.StatusOK
	if res.Outcome == ledger.OutcomeCreated {
		status = http.StatusCreated
	}
	ok(c, status, gin.H{
		"outcome":    res.Outcome,
		"attendance": res.Event,
		"aggregate":  res.Aggregate,
	})
}

// resolveMarkTarget enforces who may mark whom. Students may only mark
// their own profile; an empty target means "myself".
func (s *Server) resolveMarkTarget(ctx context.Context, claims auth.Claims, target string) (string, error) {
	if claims.Role == roster.RoleStudent {
		self, err := s.roster.StudentByUserID(ctx, claims.UserID)
		if err != nil {
			return "", err
		}
		if self == nil {
			return "", apperr.NotFound("student profile not found")
		}
		if target != "" && target != self.ID {
			return "", apperr.Forbidden("students may only mark their own attendance")
		}
		return self.ID, nil
	}
	if claims.Role != roster.RoleTeacher && claims.Role != roster.RoleAdmin {
		return "", apperr.Forbidden("access denied")
	}
	if target == "" {
		return "", apperr.Validation("studentId is required")
	}
	return target, nil
}

func (s *Server) handleRecords(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	filter := ledger.RecordFilter{
		ClassID: c.Query("classId"),
		Status:  ledger.Status(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	var err error
	if filter.From, err = parseDay(c.Query("from")); err != nil {
		fail(c, err)
		return
	}
	if filter.To, err = parseDay(c.Query("to")); err != nil {
		fail(c, err)
		return
	}

	// Students see only their own records regardless of filters.
	if claims.Role == roster.RoleStudent {
		self, err := s.roster.StudentByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			fail(c, err)
			return
		}
		if self == nil {
			fail(c, apperr.NotFound("student profile not found"))
			return
		}
		filter.StudentID = self.ID
	} else {
		filter.StudentID = c.Query("studentId")
	}

	records, err := s.ledger.Records(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// handleOwnStats returns the stored aggregate counters (the formula
// that counts late as attended).
func (s *Server) handleOwnStats(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	self, err := s.roster.StudentByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if self == nil {
		fail(c, apperr.NotFound("student profile not found"))
		return
	}

	agg, err := s.ledger.AggregateOf(c.Request.Context(), self.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"stats":          agg,
		"faceRegistered": self.FaceRegistered(),
	})
}

// handleStudentStats returns both views side by side: the stored
// aggregate and the scan-based stats, whose percentages intentionally
// differ.
func (s *Server) handleStudentStats(c *gin.Context) {
	studentID := c.Param("studentID")

	from, err := parseDay(c.Query("from"))
	if err != nil {
		fail(c, err)
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		fail(c, err)
		return
	}

	agg, err := s.ledger.AggregateOf(c.Request.Context(), studentID)
	if err != nil {
		fail(c, err)
		return
	}
	stats, err := s.ledger.ComputeStats(c.Request.Context(), studentID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"aggregate": agg, "stats": stats})
}

func (s *Server) handleClassStats(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		fail(c, err)
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		fail(c, err)
		return
	}

	stats, err := s.ledger.ClassStats(c.Request.Context(), c.Param("classID"), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleTodaySummary(c *gin.Context) {
	sum, err := s.ledger.DailySummary(c.Request.Context(), time.Now().UTC())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"summary": sum})
}

func parseDay(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, apperr.Validation("dates must be YYYY-MM-DD")
	}
	return day, nil
}
