package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/labstack/echo/v4"
)

// ErrorCodeToHTTPStatus maps a domain error code to an HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

// ErrorHandler writes every error returned by a route as a JSON error body.
// Internal details never reach the client; 5xx responses are logged with
// the full error.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorToResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"op", domain.ErrorOp(err),
				"error", err,
			)
			telemetry.CaptureErrorFromContext(c.Request().Context(), err, map[string]any{
				"op":     domain.ErrorOp(err),
				"status": status,
			})
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}

func errorToResponse(err error) (int, errorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			msg = s
		}
		return he.Code, errorResponse{Error: errorDetail{Code: codeForStatus(he.Code), Message: msg}}
	}

	if domain.IsValidationError(err) {
		return http.StatusBadRequest, errorResponse{Error: errorDetail{
			Code:    domain.EINVALID,
			Message: "Please correct the highlighted fields",
			Fields:  domain.GetValidationFields(err),
		}}
	}

	code := domain.ErrorCode(err)
	return ErrorCodeToHTTPStatus(code), errorResponse{Error: errorDetail{
		Code:    code,
		Message: domain.ErrorMessage(err),
	}}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType,
		http.StatusRequestEntityTooLarge:
		return domain.EINVALID
	case http.StatusNotFound:
		return domain.ENOTFOUND
	case http.StatusMethodNotAllowed:
		return domain.EINVALID
	case http.StatusUnauthorized:
		return domain.EUNAUTHORIZED
	case http.StatusForbidden:
		return domain.EFORBIDDEN
	case http.StatusTooManyRequests:
		return domain.ERATELIMIT
	case http.StatusServiceUnavailable:
		return domain.EUNAVAILABLE
	default:
		return domain.EINTERNAL
	}
}
