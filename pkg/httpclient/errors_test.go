package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
)

func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func structuredError(code, message string) string {
	return `{"error":{"code":"` + code + `","message":"` + message + `"}}`
}

func TestParseResponseError_NotFound(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusNotFound, structuredError("NOT_FOUND", "product not found")), "product-service")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, "product not found", appErr.Message)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestParseResponseError_KeepsMessageVerbatim(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusBadRequest, structuredError("INVALID_INPUT", "Comment required")), "product-service")

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, "Comment required", apperrors.UserMessage(err, ""))
	assert.Contains(t, err.Error(), "product-service")
}

func TestParseResponseError_ValidationFields(t *testing.T) {
	body := `{"error":{"code":"VALIDATION_ERROR","fields":{"Rating":"is required"}}}`
	err := ParseResponseError(makeResponse(http.StatusBadRequest, body), "product-service")

	assert.Equal(t, "Rating is required", apperrors.UserMessage(err, ""))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestParseResponseError_Conflict(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusConflict, structuredError("ALREADY_EXISTS", "Product already reviewed")), "product-service")
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, "Product already reviewed", apperrors.UserMessage(err, ""))
}

func TestParseResponseError_Unstructured5xx(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusBadGateway, "upstream exploded"), "cart-service")
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestParseResponseError_UnstructuredClientError(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusTeapot, "<html>"), "cart-service")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTeapot, appErr.Status)
	assert.Equal(t, http.StatusText(http.StatusTeapot), appErr.Message)
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(http.StatusOK))
	assert.True(t, IsSuccess(http.StatusCreated))
	assert.False(t, IsSuccess(http.StatusBadRequest))
}
