package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/metrics"
	"campusattend/internal/roster"
)

type registerRequest struct {
	Username  string `json:"username" binding:"required,min=3"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	if !roster.ValidRole(req.Role) {
		fail(c, apperr.Validation("invalid role"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	user, err := s.roster.CreateUser(c.Request.Context(), roster.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		fail(c, err)
		return
	}

	token, exp, err := auth.Issue(user.ID, user.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.TokenTTL)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	ok(c, http.StatusCreated, gin.H{
		"message":    "user registered successfully",
		"token":      token,
		"expires_at": exp.Unix(),
		"user":       user,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}

	user, err := s.roster.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		metrics.LoginAttempts.WithLabelValues("failed").Inc()
		fail(c, apperr.Unauthenticated("invalid credentials"))
		return
	}

	token, exp, err := auth.Issue(user.ID, user.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.TokenTTL)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	ok(c, http.StatusOK, gin.H{
		"message":    "login successful",
		"token":      token,
		"expires_at": exp.Unix(),
		"user":       user,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	user, err := s.roster.UserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		fail(c, apperr.NotFound("user not found"))
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}
