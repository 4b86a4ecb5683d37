package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Backend failures are surfaced as 502 with the backend's message; bad input as 400.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string

		var qErr *core.QueryError
		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if m, ok := origErr.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
		case *core.ArgumentError, *core.ValidationError:
			code = http.StatusBadRequest
			message = origErr.Error()
		default:
			if errors.As(err, &qErr) {
				code = http.StatusBadGateway
				message = qErr.Error()
				if logger != nil {
					logger.Error("report query failed", err, map[string]interface{}{"path": ctx.Request().URL.Path})
				}
				break
			}
			// any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			if logger != nil {
				logger.Error(message, errors.Wrap(err, message), map[string]interface{}{"path": ctx.Request().URL.Path})
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = writeJSON(ctx, code, echo.Map{"error": message})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
