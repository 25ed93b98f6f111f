package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorBody is the error envelope every API route answers with
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UpstreamErrorBody wraps a failed read-through request
type UpstreamErrorBody struct {
	Error   string      `json:"error"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse sends data as-is with 200
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// ErrorResponse sends an error envelope
func ErrorResponse(c echo.Context, statusCode int, errMsg, message string) error {
	return c.JSON(statusCode, ErrorBody{
		Error:   errMsg,
		Message: message,
	})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message, "")
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "")
}

// ForbiddenResponse sends a 403 Forbidden response
func ForbiddenResponse(c echo.Context, errMsg, message string) error {
	return ErrorResponse(c, http.StatusForbidden, errMsg, message)
}

// InternalServerErrorResponse sends a 500 Internal Server Error response
func InternalServerErrorResponse(c echo.Context, errMsg string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return ErrorResponse(c, http.StatusInternalServerError, errMsg, message)
}

// PrivateCache marks a per-user response as briefly reusable by the browser only
func PrivateCache(c echo.Context, maxAge, staleWhileRevalidate time.Duration) {
	c.Response().Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d, stale-while-revalidate=%d",
		int(maxAge.Seconds()), int(staleWhileRevalidate.Seconds())))
}

// SharedCache lets shared caches serve a response for revalidate, then stale for twice that
func SharedCache(c echo.Context, revalidate time.Duration) {
	secs := int(revalidate.Seconds())
	c.Response().Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", secs, secs*2))
}

// NoStore disables caching
func NoStore(c echo.Context) {
	c.Response().Header().Set("Cache-Control", "no-store")
}
