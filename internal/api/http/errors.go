package http

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/partcat/partcat/internal/errors"
)

// statusClientClosedRequest is the non-standard code nginx logs when the
// client disconnects before the response is written.
const statusClientClosedRequest = 499

// StatusFor maps a catalog error to an HTTP status code.
func StatusFor(err error) int {
	if _, ok := errors.AsBatchError(err); ok {
		return http.StatusMultiStatus
	}

	switch errors.GetCode(err) {
	case errors.CodeCatalogNotFound, errors.CodeTableNotFound, errors.CodePartitionNotFound, errors.CodeObjectNotFound:
		return http.StatusNotFound
	case errors.CodePartitionExists:
		return http.StatusConflict
	case errors.CodeUnsupportedOperation:
		return http.StatusNotImplemented
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeBackendFailure, errors.CodeListFailed, errors.CodeDeleteFailed:
		return http.StatusBadGateway
	}

	switch errors.GetCategory(err) {
	case errors.ErrCategoryValidation, errors.ErrCategoryFilter:
		return http.StatusBadRequest
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return statusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func errorResponse(r *http.Request, err error) ErrorResponse {
	return ErrorResponse{
		Error:     err.Error(),
		Code:      errors.GetCode(err),
		Category:  string(errors.GetCategory(err)),
		Retryable: errors.IsRetryable(err),
		RequestID: GetRequestID(r),
	}
}
