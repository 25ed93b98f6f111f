package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

const credentialsMissingError = "Alpaca credentials not configured"

// errorMapper turns domain errors into envelopes.
// upstreamStatus is what an UpstreamError maps to on this route family.
type errorMapper struct {
	logger         *logrus.Logger
	upstreamStatus int
}

func (m errorMapper) respond(c echo.Context, err error, action string) error {
	var (
		verr     *domain.ValidationError
		cerr     *domain.ConfigurationError
		upstream *domain.UpstreamError
		schema   *domain.UpstreamSchemaError
	)

	switch {
	case errors.As(err, &verr):
		return BadRequestResponse(c, verr.Message)

	case errors.Is(err, domain.ErrUnauthorized):
		return UnauthorizedResponse(c)

	case domain.IsCredentialsMissing(err):
		return ForbiddenResponse(c, credentialsMissingError, domain.CredentialsHint)

	case errors.As(err, &cerr):
		m.entry(c, err).Error("server is missing configuration")
		return ErrorResponse(c, http.StatusInternalServerError, "Server configuration error", cerr.Error())

	case errors.As(err, &schema):
		m.entry(c, err).Error("upstream returned an unexpected payload")
		return ErrorResponse(c, http.StatusInternalServerError, action, "Unexpected response from "+schema.Service)

	case errors.As(err, &upstream):
		m.entry(c, err).WithField("upstream_status", upstream.StatusCode).Warn(action)
		status := m.upstreamStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return ErrorResponse(c, status, action, upstream.StatusText())

	default:
		m.entry(c, err).Error(action)
		return InternalServerErrorResponse(c, action, err)
	}
}

func (m errorMapper) entry(c echo.Context, err error) *logrus.Entry {
	return m.logger.WithError(err).WithFields(logrus.Fields{
		"path":       c.Request().URL.Path,
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

// JSONErrorHandler renders echo's own errors (404, 405, bad bodies) in the API envelope
func JSONErrorHandler(logger *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := http.StatusText(status)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.WithError(err).WithField("path", c.Request().URL.Path).Error("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorBody{Error: message})
		}
		if err != nil {
			logger.WithError(err).Warn("failed to write error response")
		}
	}
}
