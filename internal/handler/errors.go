package handler

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

const errorDomain = "workflows.identra"

// errorBody is the JSON error envelope of every non-2xx response.
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code     errors.ErrorCode `json:"code"`
	Category errors.Category  `json:"category"`
	Message  string           `json:"message"`
}

// httpStatus maps an error to its HTTP status. Specific codes win over the
// category default.
func httpStatus(err error) int {
	switch errors.CodeOf(err) {
	case domain.CodeDuplicateCode:
		return http.StatusConflict
	case domain.CodeTemplateInactive, domain.CodeNoApproverFound:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	}

	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryResource:
		return http.StatusNotFound
	case errors.CategoryAuthorization:
		return http.StatusForbidden
	case errors.CategoryStateConflict:
		return http.StatusConflict
	case errors.CategoryDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch errors.CodeOf(err) {
	case domain.CodeDuplicateCode, errors.ErrCodeConflict:
		return codes.AlreadyExists
	case domain.CodeTemplateInactive, domain.CodeNoApproverFound:
		return codes.FailedPrecondition
	case errors.ErrCodeUnauthenticated:
		return codes.Unauthenticated
	}

	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return codes.InvalidArgument
	case errors.CategoryResource:
		return codes.NotFound
	case errors.CategoryAuthorization:
		return codes.PermissionDenied
	case errors.CategoryStateConflict:
		return codes.FailedPrecondition
	case errors.CategoryDependency:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// payload renders err for clients. Internal errors never leak their cause.
func payload(err error) errorPayload {
	appErr, ok := errors.As(err)
	if !ok || appErr.Category == errors.CategoryInternal {
		return errorPayload{Code: errors.ErrCodeInternal, Category: errors.CategoryInternal, Message: "internal error"}
	}
	return errorPayload{Code: appErr.Code, Category: appErr.Category, Message: appErr.Message}
}

// mapErrorToGRPC converts an application error to a gRPC status carrying
// the error code as ErrorInfo.Reason.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	p := payload(err)
	st := status.New(grpcCode(err), p.Message)
	withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(p.Code),
		Domain:   errorDomain,
		Metadata: map[string]string{"category": string(p.Category)},
	})
	if derr != nil {
		return st.Err()
	}
	return withInfo.Err()
}
