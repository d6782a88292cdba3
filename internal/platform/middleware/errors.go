package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

// ErrorBody is the JSON body of every error response. Stage names the step
// of a composite lookup that failed.
type ErrorBody struct {
	Detail string `json:"detail"`
	Stage  string `json:"stage,omitempty"`
}

// StatusOf returns the response status err maps to.
func StatusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if k := apperror.KindOf(err); k != 0 {
		return apperror.HTTPStatus(k)
	}
	return http.StatusInternalServerError
}

func errorBody(err error) ErrorBody {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return ErrorBody{Detail: ae.Detail(), Stage: ae.Stage}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return ErrorBody{Detail: msg}
		}
		return ErrorBody{Detail: fmt.Sprint(he.Message)}
	}
	return ErrorBody{Detail: "internal server error"}
}

// ErrorHandler renders classified errors and echo HTTP errors as
// ErrorBody. Unclassified errors become 500 without leaking their text.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusOf(err)
		body := errorBody(err)
		if status >= http.StatusInternalServerError && apperror.KindOf(err) == 0 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
