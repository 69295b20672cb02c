package gradebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLetterBands(t *testing.T) {
	tests := []struct {
		total int
		want  string
	}{
		{95, "O"},
		{90, "O"},
		{89, "A+"},
		{80, "A+"},
		{75, "A"},
		{65, "B+"},
		{55, "B"},
		{45, "C"},
		{33, "D"},
		{32, "F"},
		{0, "F"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LetterFor(tc.total, 100), "total=%d", tc.total)
	}
}

func TestLetterForScalesWithMaxMarks(t *testing.T) {
	// 45/50 is 90%.
	assert.Equal(t, "O", LetterFor(45, 50))
	// Degenerate max marks never divides by zero.
	assert.Equal(t, "F", LetterFor(10, 0))
}

func TestSummarizeComputesWeightedGPA(t *testing.T) {
	grades := []Grade{
		{Semester: "1", Subject: "Maths", Letter: "O", Credits: 4},    // 40
		{Semester: "1", Subject: "Physics", Letter: "A", Credits: 3},  // 24
		{Semester: "1", Subject: "Workshop", Letter: "B", Credits: 2}, // 12
		{Semester: "2", Subject: "Chemistry", Letter: "F", Credits: 3},
	}

	summary := Summarize(grades)
	assert.Len(t, summary, 2)

	sem1 := summary[0]
	assert.Equal(t, "1", sem1.Semester)
	assert.Equal(t, 9, sem1.TotalCredits)
	// (40+24+12)/9 = 8.44
	assert.InDelta(t, 8.44, sem1.GPA, 0.001)

	sem2 := summary[1]
	assert.Equal(t, 0.0, sem2.GPA)
	assert.Equal(t, 3, sem2.TotalCredits)
}

func TestSummarizeEmptyAndZeroCredits(t *testing.T) {
	assert.Empty(t, Summarize(nil))

	summary := Summarize([]Grade{{Semester: "1", Letter: "O", Credits: 0}})
	assert.Equal(t, 0.0, summary[0].GPA)
}
