package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
)

// RequestTimeout sets a context deadline on each incoming request. If the
// deadline is exceeded before the handler completes, the request context is
// cancelled and a 504 with an OperationOutcome body is returned. A full
// synchronization run can take a while, so the configured timeout should
// leave room for the slowest southbound round trip.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// Run handler in a goroutine so we can select on the context.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return gatewayTimeoutError(c)
				}
				// Other cancellation reasons (e.g. client disconnect).
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeoutError(c echo.Context) error {
	outcome := fhir.NewOperationOutcome(
		fhir.IssueSeverityError,
		fhir.IssueTypeTimeout,
		"Request processing exceeded the allowed time limit",
	)
	// The response may already be committed by a partial write.
	if !c.Response().Committed {
		return c.JSON(http.StatusGatewayTimeout, outcome)
	}
	return nil
}
