// Package gradebook stores marks and derives letter grades and
// semester GPA.
package gradebook

import (
	"time"
)

// Grade is one subject result for a student in a semester.
type Grade struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Subject   string    `json:"subject"`
	Semester  string    `json:"semester"`
	ClassID   *string   `json:"classId,omitempty"`
	Internal  int       `json:"internal"`
	External  int       `json:"external"`
	Total     int       `json:"total"`
	MaxMarks  int       `json:"maxMarks"`
	Letter    string    `json:"letter"`
	Credits   int       `json:"credits"`
	TeacherID *string   `json:"teacherId,omitempty"`
	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LetterFor maps a marks percentage onto the ten-point letter bands.
func LetterFor(total, maxMarks int) string {
	if maxMarks <= 0 {
		return "F"
	}
	pct := float64(total) / float64(maxMarks) * 100
	switch {
	case pct >= 90:
		return "O"
	case pct >= 80:
		return "A+"
	case pct >= 70:
		return "A"
	case pct >= 60:
		return "B+"
	case pct >= 50:
		return "B"
	case pct >= 40:
		return "C"
	case pct >= 33:
		return "D"
	default:
		return "F"
	}
}

// gradePoints on the 10-point scale. AB (absent) earns nothing.
var gradePoints = map[string]float64{
	"O": 10, "A+": 9, "A": 8, "B+": 7, "B": 6, "C": 5, "D": 4, "F": 0, "AB": 0,
}

// SemesterSummary is one semester's grades with its GPA.
type SemesterSummary struct {
	Semester     string  `json:"semester"`
	Grades       []Grade `json:"grades"`
	GPA          float64 `json:"gpa"`
	TotalCredits int     `json:"totalCredits"`
}

// Summarize groups grades by semester and computes a credit-weighted
// GPA per semester. Input order is preserved within a semester.
func Summarize(grades []Grade) []SemesterSummary {
	bySem := make(map[string]*SemesterSummary)
	var order []string
	for _, g := range grades {
		sum, ok := bySem[g.Semester]
		if !ok {
			sum = &SemesterSummary{Semester: g.Semester}
			bySem[g.Semester] = sum
			order = append(order, g.Semester)
		}
		sum.Grades = append(sum.Grades, g)
		sum.TotalCredits += g.Credits
	}

	res := make([]SemesterSummary, 0, len(order))
	for _, sem := range order {
		sum := bySem[sem]
		if sum.TotalCredits > 0 {
			var earned float64
			for _, g := range sum.Grades {
				earned += gradePoints[g.Letter] * float64(g.Credits)
			}
			// Two decimal places, matching what report cards show.
			sum.GPA = float64(int(earned/float64(sum.TotalCredits)*100+0.5)) / 100
		}
		res = append(res, *sum)
	}
	return res
}
