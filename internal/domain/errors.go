package domain

import "github.com/identra/be-hr-workflows/internal/common/errors"

// Workflow error codes.
const (
	CodeInvalidTemplate      errors.ErrorCode = "INVALID_TEMPLATE"
	CodeEmptyTemplate        errors.ErrorCode = "EMPTY_TEMPLATE"
	CodeDuplicateCode        errors.ErrorCode = "DUPLICATE_CODE"
	CodeInvalidAction        errors.ErrorCode = "INVALID_ACTION"
	CodeTemplateNotFound     errors.ErrorCode = "TEMPLATE_NOT_FOUND"
	CodeTemplateInactive     errors.ErrorCode = "TEMPLATE_INACTIVE"
	CodeRequestNotFound      errors.ErrorCode = "REQUEST_NOT_FOUND"
	CodeInstanceNotFound     errors.ErrorCode = "INSTANCE_NOT_FOUND"
	CodeNotAuthorized        errors.ErrorCode = "NOT_AUTHORIZED"
	CodeNotActionable        errors.ErrorCode = "NOT_ACTIONABLE"
	CodeRequestAlreadyClosed errors.ErrorCode = "REQUEST_ALREADY_CLOSED"
	CodeNoApproverFound      errors.ErrorCode = "NO_APPROVER_FOUND"
	CodeDirectoryUnavailable errors.ErrorCode = "DIRECTORY_UNAVAILABLE"
)

// Sentinels. Call sites refine the message with Withf; errors.Is still matches.
var (
	ErrInvalidTemplate = errors.Define(errors.CategoryValidation, CodeInvalidTemplate, "template violates step ordering rules")
	ErrEmptyTemplate   = errors.Define(errors.CategoryValidation, CodeEmptyTemplate, "template has no steps")
	ErrDuplicateCode   = errors.Define(errors.CategoryValidation, CodeDuplicateCode, "workflow code already exists")
	ErrInvalidAction   = errors.Define(errors.CategoryValidation, CodeInvalidAction, "invalid decision action")

	ErrTemplateNotFound = errors.Define(errors.CategoryResource, CodeTemplateNotFound, "workflow template not found")
	ErrTemplateInactive = errors.Define(errors.CategoryResource, CodeTemplateInactive, "workflow template is inactive")
	ErrRequestNotFound  = errors.Define(errors.CategoryResource, CodeRequestNotFound, "workflow request not found")
	ErrInstanceNotFound = errors.Define(errors.CategoryResource, CodeInstanceNotFound, "approval step instance not found")

	ErrNotAuthorized = errors.Define(errors.CategoryAuthorization, CodeNotAuthorized, "actor is not the assigned approver")

	ErrNotActionable        = errors.Define(errors.CategoryStateConflict, CodeNotActionable, "step is not awaiting action")
	ErrRequestAlreadyClosed = errors.Define(errors.CategoryStateConflict, CodeRequestAlreadyClosed, "workflow request is already closed")
	ErrConflict             = errors.Define(errors.CategoryStateConflict, errors.ErrCodeConflict, "an active request already exists for this transaction")

	ErrNoApproverFound      = errors.Define(errors.CategoryDependency, CodeNoApproverFound, "no approver found for role")
	ErrDirectoryUnavailable = errors.Define(errors.CategoryDependency, CodeDirectoryUnavailable, "organization directory is unavailable")
)
