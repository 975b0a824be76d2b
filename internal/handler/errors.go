package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/dispatch-service/internal/errs"
)

// statusOf maps an engine error kind to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrAgentUnavailable),
		errors.Is(err, errs.ErrCapacityExceeded),
		errors.Is(err, errs.ErrShiftViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrAlreadyAssigned),
		errors.Is(err, errs.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error(), "kind": errs.Kind(err)}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	return body
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	body := errorBody(err)
	if status == http.StatusInternalServerError {
		// Store failures are not reported verbatim.
		_ = c.Error(err)
		body = gin.H{"error": "internal error", "kind": errs.Kind(err)}
	}
	c.JSON(status, body)
}

// writeBindError reports a body that could not be decoded. Validation
// errors raised while decoding (a malformed shift, say) keep their field.
func writeBindError(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrValidation) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "kind": errs.Kind(errs.ErrValidation)})
}
