package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
)

// ErrorHandler converts errors that escape the handlers into responses.
// Routing errors keep echo's {"message": ...} shape; anything else becomes
// a FHIR OperationOutcome so clients always get a parseable body.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := he.Message
			if text, ok := message.(string); ok {
				message = map[string]string{"message": text}
			}
			if writeErr := c.JSON(he.Code, message); writeErr != nil {
				logger.Error().Err(writeErr).Msg("failed to write error response")
			}
			return
		}

		logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		if writeErr := c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error())); writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
