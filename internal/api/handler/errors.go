package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/videogen/internal/api/dto"
	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is used when the caller went away before the job finished
const StatusClientClosedRequest = 499

// statusForError maps the poller error taxonomy onto HTTP status codes.
// Vendor call failures keep the vendor's own status code.
func statusForError(err error) int {
	var (
		vendorErr    *poller.VendorError
		transportErr *poller.TransportError
	)

	switch poller.ErrorKind(err) {
	case poller.KindValidation:
		return http.StatusBadRequest
	case poller.KindConfiguration:
		return http.StatusInternalServerError
	case poller.KindVendor:
		if errors.As(err, &vendorErr) && vendorErr.StatusCode >= 400 && vendorErr.StatusCode <= 599 {
			return vendorErr.StatusCode
		}
		if errors.As(err, &transportErr) && transportErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case poller.KindVendorOperation, poller.KindProtocol:
		return http.StatusBadGateway
	case poller.KindTimeout:
		return http.StatusGatewayTimeout
	case poller.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the structured error object returned to callers
func errorBody(err error) dto.ErrorResponse {
	body := dto.ErrorBody{
		Kind:    poller.ErrorKind(err),
		Message: err.Error(),
	}

	var (
		vendorErr    *poller.VendorError
		operationErr *poller.VendorOperationError
	)
	switch {
	case errors.As(err, &operationErr):
		body.Detail = operationErr.Detail.Message
	case errors.As(err, &vendorErr):
		body.Detail = vendorErr.Body
	}

	if body.Kind == poller.KindConfiguration || body.Kind == poller.KindInternal {
		// do not leak deployment details
		body.Message = http.StatusText(http.StatusInternalServerError)
	}

	return dto.ErrorResponse{Error: body}
}

func (h *VideoHandler) writeError(c *gin.Context, err error) {
	status := statusForError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "Video request failed",
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.String("error_kind", poller.ErrorKind(err)),
		slog.String("error", err.Error()),
	)

	c.JSON(status, errorBody(err))
}

func writeMessage(c *gin.Context, status int, kind, message string) {
	c.JSON(status, dto.ErrorResponse{Error: dto.ErrorBody{Kind: kind, Message: message}})
}
