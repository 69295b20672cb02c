// Package metrics registers the Prometheus collectors exported on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarksTotal counts mark-attendance outcomes by result:
	// created, checked_out, conflict, rejected.
	MarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusattend_marks_total",
		Help: "Attendance mark attempts by outcome.",
	}, []string{"outcome"})

	// FaceVerifications counts worker-side face re-verifications.
	FaceVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusattend_face_verifications_total",
		Help: "Face verification results processed by the worker.",
	}, []string{"result"})

	// LoginAttempts counts authentication attempts by result.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusattend_login_attempts_total",
		Help: "Login attempts by result.",
	}, []string{"result"})
)
