package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openclaim/excore/pkg/database"
)

// writeError maps a core-layer error to an HTTP status and the uniform
// `{ok, error_code, errors}` shape spec.md §7 requires for user-visible
// failures. Input-bounded errors (bad task id) never panic the handler.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, database.ErrTaskNotFound):
		status, code = http.StatusNotFound, "task_not_found"
	case errors.Is(err, errInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	}

	c.JSON(status, gin.H{
		"ok":         false,
		"error_code": code,
		"errors":     []string{err.Error()},
	})
}

// errInvalidRequest wraps binding/validation failures that are the
// caller's fault, never raised as a 500 (spec.md §7 "Input-bounded").
var errInvalidRequest = errors.New("invalid request")

func invalidRequest(detail string) error {
	return errors.Join(errInvalidRequest, errors.New(detail))
}
