// Package httpapi is the small operator admin surface: health, metrics,
// and a manual outbox-retry endpoint. It is not a public or
// authenticated API — see DESIGN.md for why the teacher's auth/CORS/
// rate-limit middleware stack was dropped rather than adapted here.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the envelope every handler in this package returns,
// trimmed down from the teacher's common.APIResponse to what an
// operator admin surface actually needs: no pagination meta, no
// field-level validation errors.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, code int, data any) {
	c.JSON(code, apiResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, apiResponse{Success: false, Error: err.Error()})
}

func notFound(c *gin.Context, err error) {
	respondError(c, http.StatusNotFound, err)
}
