package httpapi

import (
	"log"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
)

// ok writes a success envelope merged with the payload.
func ok(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

// fail maps an error onto status + {success:false, message}. Internal
// causes are logged, never surfaced.
func fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
}

// failValidation shortcuts a binding error.
func failValidation(c *gin.Context, err error) {
	fail(c, apperr.Validation(err.Error()))
}
