// Package roster owns people and classes: user accounts, student and
// teacher profiles, and class sections.
package roster

import (
	"encoding/json"
	"time"
)

// Roles recognized across the system.
const (
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
	RoleAdmin     = "admin"
	RoleTransport = "transport"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleTransport:
		return true
	}
	return false
}

// User is an account. PasswordHash never serializes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Student is the per-student profile. The attendance counters live on
// the same row but are owned by the ledger.
type Student struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	StudentCode      string          `json:"studentCode"`
	RollNumber       string          `json:"rollNumber,omitempty"`
	Department       string          `json:"department,omitempty"`
	Semester         int             `json:"semester,omitempty"`
	FaceDescriptor   json.RawMessage `json:"faceDescriptor,omitempty"`
	FaceRegisteredAt *time.Time      `json:"faceRegisteredAt,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// FaceRegistered reports whether the student has enrolled a descriptor.
func (s Student) FaceRegistered() bool { return len(s.FaceDescriptor) > 0 }

// Teacher is the per-teacher profile.
type Teacher struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	EmployeeCode string    `json:"employeeCode"`
	Department   string    `json:"department,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Class is a section students attend.
type Class struct {
	ID           string    `json:"id"`
	ClassName    string    `json:"className"`
	ClassCode    string    `json:"classCode"`
	TeacherID    *string   `json:"teacherId,omitempty"`
	Semester     int       `json:"semester,omitempty"`
	Department   string    `json:"department,omitempty"`
	AcademicYear string    `json:"academicYear,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GalleryEntry is what teachers fetch to run browser-side matching:
// the student's identity plus the enrolled descriptor.
type GalleryEntry struct {
	StudentID   string          `json:"studentId"`
	StudentCode string          `json:"studentCode"`
	Name        string          `json:"name"`
	Department  string          `json:"department,omitempty"`
	Descriptor  json.RawMessage `json:"descriptor"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalUsers      int `json:"totalUsers"`
	TotalStudents   int `json:"totalStudents"`
	TotalTeachers   int `json:"totalTeachers"`
	TotalClasses    int `json:"totalClasses"`
	TotalAttendance int `json:"totalAttendance"`
	TodayAttendance int `json:"todayAttendance"`
	PresentToday    int `json:"presentToday"`
}
