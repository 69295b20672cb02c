package noticeboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	base := Announcement{Title: "Exam schedule", Content: "Finals start Monday."}

	assert.NoError(t, base.Validate())

	missingTitle := base
	missingTitle.Title = ""
	assert.Error(t, missingTitle.Validate())

	longTitle := base
	longTitle.Title = strings.Repeat("x", 201)
	assert.Error(t, longTitle.Validate())

	longContent := base
	longContent.Content = strings.Repeat("x", 5001)
	assert.Error(t, longContent.Validate())

	badPriority := base
	badPriority.Priority = "critical"
	assert.Error(t, badPriority.Validate())

	badCategory := base
	badCategory.Category = "sports"
	assert.Error(t, badCategory.Validate())

	fullyTagged := base
	fullyTagged.Priority = "urgent"
	fullyTagged.Category = "exam"
	assert.NoError(t, fullyTagged.Validate())
}
