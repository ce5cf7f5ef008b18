package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	sentinel := Define(CategoryStateConflict, "NOT_ACTIONABLE", "step is not awaiting action")
	specific := sentinel.Withf("instance %d is APPROVED", 4)

	assert.True(t, stderrors.Is(specific, sentinel))
	assert.True(t, Is(fmt.Errorf("decide: %w", specific), sentinel))
	assert.False(t, Is(specific, New(ErrCodeConflict, "other")))
	assert.Equal(t, "instance 4 is APPROVED", specific.Message)
	assert.Equal(t, CategoryStateConflict, specific.Category)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to load template")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, CategoryInternal, err.Category)
}

func TestCodeAndCategoryOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		category Category
	}{
		{"not found", NotFound("workflow_request", 9), ErrCodeNotFound, CategoryResource},
		{"invalid input", InvalidInput("workflow_id", "is required"), ErrCodeInvalidInput, CategoryValidation},
		{"forbidden", New(ErrCodeForbidden, "nope"), ErrCodeForbidden, CategoryAuthorization},
		{"wrapped app error", fmt.Errorf("outer: %w", New(ErrCodeConflict, "dup")), ErrCodeConflict, CategoryStateConflict},
		{"foreign error", stderrors.New("boom"), ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.category, CategoryOf(tt.err))
		})
	}
}

func TestAs(t *testing.T) {
	_, ok := As(stderrors.New("plain"))
	assert.False(t, ok)

	appErr, ok := As(fmt.Errorf("x: %w", NotFound("workflow", 1)))
	require.True(t, ok)
	assert.Equal(t, "workflow 1 not found", appErr.Message)
}
