package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

var kindStatus = map[domain.Kind]int{
	domain.KindNotFound:   http.StatusNotFound,
	domain.KindForbidden:  http.StatusForbidden,
	domain.KindConflict:   http.StatusConflict,
	domain.KindBadRequest: http.StatusBadRequest,
	domain.KindInternal:   http.StatusInternalServerError,
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// respondError renders a core error with the status of its kind. Internal
// errors are logged by the request logger and hidden from the client.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := kindStatus[kind]
	message := err.Error()
	if kind == domain.KindInternal {
		_ = c.Error(err)
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorBody(kind.String(), message))
}

func respondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(domain.KindBadRequest.String(), message))
}
