package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/cloudinary"
)

type enrollRequest struct {
	Descriptor  json.RawMessage `json:"descriptor" binding:"required"`
	SnapshotURL string          `json:"snapshotUrl"`
}

// handleFaceEnroll stores a student's face descriptor. Enrollment is
// one-time; re-enrolling requires an admin to clear the old descriptor.
func (s *Server) handleFaceEnroll(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err)
		return
	}
	var probe []float64
	if err := json.Unmarshal(req.Descriptor, &probe); err != nil || len(probe) == 0 {
		fail(c, apperr.Validation("descriptor must be a non-empty array of numbers"))
		return
	}

	self, err := s.roster.StudentByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if self == nil {
		fail(c, apperr.NotFound("student profile not found"))
		return
	}

	if err := s.roster.SaveFaceDescriptor(c.Request.Context(), self.ID, req.Descriptor); err != nil {
		fail(c, err)
		return
	}

	// Mirror the enrollment into the face service's gallery so the
	// worker can verify against it. Best effort; the descriptor is the
	// source of truth.
	if s.faces != nil && req.SnapshotURL != "" {
		if _, err := s.faces.Enroll(c.Request.Context(), self.ID, req.SnapshotURL, self.StudentCode); err != nil {
			log.Printf("face service enroll failed for %s: %v", self.ID, err)
		}
	}

	ok(c, http.StatusCreated, gin.H{"message": "face registered"})
}

func (s *Server) handleFaceStatus(c *gin.Context) {
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
	ok(c, http.StatusOK, gin.H{"registered": self.FaceRegistered()})
}

// handleFaceGallery returns every enrolled descriptor so the kiosk can
// match faces client-side.
func (s *Server) handleFaceGallery(c *gin.Context) {
	gallery, err := s.roster.FaceGallery(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"gallery": gallery, "count": len(gallery)})
}

type snapshotRequest struct {
	Image string `json:"image" binding:"required"`
}

// handleSnapshotUpload pushes a base64 camera frame to image storage
// and returns the hosted URL for use in a mark request.
func (s *Server) handleSnapshotUpload(c *gin.Context) {
	if s.cdn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": "image storage is not configured",
		})
		return
	}

	var res *cloudinary.UploadResult
	var err error

	// Kiosks post a base64 data URL; the admin UI posts a multipart
	// file.
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			fail(c, apperr.Validation("file field required"))
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			fail(c, apperr.Internal(ferr))
			return
		}
		res, err = s.cdn.UploadBytes(data, header.Filename)
	} else {
		var req snapshotRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			failValidation(c, berr)
			return
		}
		res, err = s.cdn.UploadBase64(req.Image)
	}

	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusCreated, gin.H{"url": res.SecureURL, "publicId": res.PublicID})
}
