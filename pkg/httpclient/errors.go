package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
)

// DownstreamErrorResponse mirrors the `{"error":{"code","message"}}`
// envelope returned by the backend services.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. The downstream message is kept verbatim so it can be shown
// to the shopper (e.g. "Comment required"); the service name goes into the
// wrapped cause instead. The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		message := downstream.Error.Message
		if message == "" {
			message = firstFieldMessage(downstream.Error.Fields)
		}
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, message, serviceName)
	}

	return mapDownstreamError(resp.StatusCode, "", "", serviceName)
}

// mapDownstreamError translates a downstream status code and error code
// into an AppError that preserves the error semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	cause := fmt.Errorf("%s returned status %d", serviceName, status)

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusNotFound:
		appErr = apperrors.NotFound(serviceName, message)
		appErr.Message = message
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		appErr = apperrors.InvalidInput(message)
	case status == http.StatusConflict:
		appErr = apperrors.Conflict(message)
	case status == http.StatusUnauthorized:
		appErr = apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		appErr = apperrors.Forbidden(message)
	case status >= 500:
		return apperrors.ServiceUnavailable(serviceName, fmt.Errorf("%w: %s", cause, message))
	default:
		return &apperrors.AppError{Code: code, Message: message, Status: status, Err: cause}
	}

	if code != "" {
		appErr.Code = code
	}
	appErr.Err = fmt.Errorf("%w (%v)", appErr.Err, cause)
	return appErr
}

func firstFieldMessage(fields map[string]string) string {
	for field, msg := range fields {
		return fmt.Sprintf("%s %s", field, msg)
	}
	return ""
}

// IsSuccess reports whether the status code is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
