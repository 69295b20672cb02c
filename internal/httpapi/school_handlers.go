package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/gradebook"
	"campusattend/internal/noticeboard"
	"campusattend/internal/roster"
	"campusattend/internal/timetable"
	"campusattend/internal/transport"
)

// --- Announcements ---

func (s *Server) handleListAnnouncements(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	list, err := s.notices.List(c.Request.Context(), c.Query("category"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"announcements": list, "count": len(list)})
}

func (s *Server) handleCreateAnnouncement(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req noticeboard.Announcement
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	req.AuthorID = claims.UserID
	req.AuthorRole = claims.Role
	if req.AuthorName == "" {
		if u, err := s.roster.UserByID(c.Request.Context(), claims.UserID); err == nil && u != nil {
			req.AuthorName = strings.TrimSpace(u.FirstName + " " + u.LastName)
		}
	}

	created, err := s.notices.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"announcement": created})
}

// handleDeleteAnnouncement allows the author or any admin to remove a
// post.
func (s *Server) handleDeleteAnnouncement(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	id := c.Param("id")

	ann, err := s.notices.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if ann == nil {
		fail(c, apperr.NotFound("announcement not found"))
		return
	}
	if claims.Role != roster.RoleAdmin && ann.AuthorID != claims.UserID {
		fail(c, apperr.Forbidden("only the author or an admin may delete this announcement"))
		return
	}

	if err := s.notices.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "announcement deleted"})
}

// --- Grades ---

func (s *Server) handleListGrades(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	studentID := c.Query("studentId")
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
		studentID = self.ID
	}
	if studentID == "" {
		fail(c, apperr.Validation("studentId is required"))
		return
	}

	grades, err := s.grades.List(c.Request.Context(), studentID, c.Query("semester"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"grades": grades, "count": len(grades)})
}

func (s *Server) handleGradeSummary(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	studentID := c.Param("studentID")

	if claims.Role == roster.RoleStudent {
		self, err := s.roster.StudentByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			fail(c, err)
			return
		}
		if self == nil || self.ID != studentID {
			fail(c, apperr.Forbidden("students may only view their own summary"))
			return
		}
	}

	grades, err := s.grades.List(c.Request.Context(), studentID, "")
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"semesters": gradebook.Summarize(grades)})
}

func (s *Server) handleUpsertGrade(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req gradebook.Grade
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.StudentID == "" || req.Subject == "" || req.Semester == "" {
		fail(c, apperr.Validation("studentId, subject and semester are required"))
		return
	}
	teacherID := claims.UserID
	req.TeacherID = &teacherID

	saved, err := s.grades.Upsert(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"grade": saved})
}

func (s *Server) handleDeleteGrade(c *gin.Context) {
	if err := s.grades.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "grade deleted"})
}

// --- Timetables ---

func (s *Server) handleListTimetables(c *gin.Context) {
	list, err := s.timetables.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"timetables": list, "count": len(list)})
}

func (s *Server) handleTimetableByClass(c *gin.Context) {
	tt, err := s.timetables.ByClassName(c.Request.Context(), c.Param("className"))
	if err != nil {
		fail(c, err)
		return
	}
	if tt == nil {
		fail(c, apperr.NotFound("timetable not found"))
		return
	}
	ok(c, http.StatusOK, gin.H{"timetable": tt})
}

func (s *Server) handleUpsertTimetable(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req timetable.Timetable
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.ClassName == "" {
		fail(c, apperr.Validation("className is required"))
		return
	}
	creator := claims.UserID
	req.CreatedBy = &creator

	saved, err := s.timetables.Upsert(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"timetable": saved})
}

func (s *Server) handleDeleteTimetable(c *gin.Context) {
	if err := s.timetables.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "timetable deleted"})
}

// --- Transport ---

func (s *Server) handleListRoutes(c *gin.Context) {
	routes, err := s.buses.ListRoutes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
}

func (s *Server) handleRouteByID(c *gin.Context) {
	route, err := s.buses.RouteByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if route == nil {
		fail(c, apperr.NotFound("route not found"))
		return
	}
	ok(c, http.StatusOK, gin.H{"route": route})
}

func (s *Server) handleCreateRoute(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req transport.Route
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.Number == "" || req.Name == "" {
		fail(c, apperr.Validation("number and name are required"))
		return
	}
	creator := claims.UserID
	req.CreatedBy = &creator

	created, err := s.buses.CreateRoute(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"route": created})
}

func (s *Server) handleUpdateRoute(c *gin.Context) {
	var req transport.Route
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	req.ID = c.Param("id")

	updated, err := s.buses.UpdateRoute(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"route": updated})
}

func (s *Server) handleDeleteRoute(c *gin.Context) {
	if err := s.buses.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "route deleted"})
}

func (s *Server) handleListNotices(c *gin.Context) {
	notices, err := s.buses.ListNotices(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"notices": notices, "count": len(notices)})
}

func (s *Server) handleCreateNotice(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req transport.Notice
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.Title == "" || req.Content == "" {
		fail(c, apperr.Validation("title and content are required"))
		return
	}
	creator := claims.UserID
	req.CreatedBy = &creator

	created, err := s.buses.CreateNotice(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"notice": created})
}

func (s *Server) handleDeleteNotice(c *gin.Context) {
	if err := s.buses.DeleteNotice(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "notice deleted"})
}
