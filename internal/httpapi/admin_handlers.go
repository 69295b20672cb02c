package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/ledger"
	"campusattend/internal/roster"
)

func (s *Server) handleListUsers(c *gin.Context) {
	role := c.Query("role")
	if role != "" && !roster.ValidRole(role) {
		fail(c, apperr.Validation("unknown role"))
		return
	}
	users, err := s.roster.ListUsers(c.Request.Context(), role)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (s *Server) handleDashboard(c *gin.Context) {
	stats, err := s.roster.Dashboard(c.Request.Context(), ledger.DayOf(time.Now().UTC()))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleListClasses(c *gin.Context) {
	classes, err := s.roster.ListClasses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"classes": classes, "count": len(classes)})
}

func (s *Server) handleCreateClass(c *gin.Context) {
	var req roster.Class
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if req.ClassName == "" || req.ClassCode == "" {
		fail(c, apperr.Validation("className and classCode are required"))
		return
	}

	created, err := s.roster.CreateClass(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"class": created})
}
