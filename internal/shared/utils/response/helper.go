package response

import (
	"shelfmate/internal/shared/apperr"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError writes err with the status code of its kind. Internal errors
// get a generic message; their cause is attached only when exposeDetail is set.
func RespondError(c *gin.Context, err error, exposeDetail bool) {
	kind := apperr.KindOf(err)
	code := apperr.HTTPStatus(kind)

	if kind != apperr.KindInternal {
		RespondJSON(c, "error", code, err.Error(), nil, nil)
		return
	}

	var detail interface{}
	if exposeDetail {
		detail = err.Error()
		if ae, ok := err.(*apperr.Error); ok && ae.Err != nil {
			detail = ae.Err.Error()
		}
	}
	RespondJSON(c, "error", code, "Internal server error", nil, detail)
}
