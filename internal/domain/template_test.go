package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/be-hr-workflows/internal/common/errors"
)

func step(order int, role string, final bool) WorkflowStep {
	return WorkflowStep{
		StepOrder:      order,
		Name:           LocalizedName{En: role + " approval", Ar: "موافقة"},
		ApproverRoleID: RoleID(role),
		IsFinalStep:    final,
	}
}

func leaveSteps() []WorkflowStep {
	return []WorkflowStep{
		step(1, "MANAGER", false),
		step(2, "HR", false),
		step(3, "DIRECTOR", true),
	}
}

func TestValidateSteps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []WorkflowStep
		wantErr bool
	}{
		{"valid three steps", leaveSteps(), false},
		{"valid unordered input", []WorkflowStep{step(2, "HR", true), step(1, "MANAGER", false)}, false},
		{"single final step", []WorkflowStep{step(1, "MANAGER", true)}, false},
		{"empty", nil, true},
		{"gap", []WorkflowStep{step(1, "MANAGER", false), step(3, "HR", true)}, true},
		{"duplicate order", []WorkflowStep{step(1, "MANAGER", false), step(1, "HR", true)}, true},
		{"starts at two", []WorkflowStep{step(2, "MANAGER", true)}, true},
		{"no final", []WorkflowStep{step(1, "MANAGER", false), step(2, "HR", false)}, true},
		{"two finals", []WorkflowStep{step(1, "MANAGER", true), step(2, "HR", true)}, true},
		{"final not last", []WorkflowStep{step(1, "MANAGER", true), step(2, "HR", false)}, true},
		{"missing role", []WorkflowStep{step(1, "", true)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTemplate))
				assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInsertStep(t *testing.T) {
	t.Run("append final demotes previous final", func(t *testing.T) {
		existing := []WorkflowStep{step(1, "MANAGER", false), step(2, "HR", true)}
		out, err := InsertStep(existing, step(0, "DIRECTOR", true))
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.False(t, out[1].IsFinalStep)
		assert.True(t, out[2].IsFinalStep)
		assert.Equal(t, 3, out[2].StepOrder)
		assert.Equal(t, RoleID("DIRECTOR"), out[2].ApproverRoleID)
	})

	t.Run("first step must be final", func(t *testing.T) {
		_, err := InsertStep(nil, step(0, "MANAGER", false))
		assert.True(t, errors.Is(err, ErrInvalidTemplate))

		out, err := InsertStep(nil, step(0, "MANAGER", true))
		require.NoError(t, err)
		assert.Equal(t, 1, out[0].StepOrder)
	})

	t.Run("insert in the middle shifts later steps", func(t *testing.T) {
		existing := []WorkflowStep{step(1, "MANAGER", false), step(2, "DIRECTOR", true)}
		out, err := InsertStep(existing, step(2, "HR", false))
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, RoleID("MANAGER"), out[0].ApproverRoleID)
		assert.Equal(t, RoleID("HR"), out[1].ApproverRoleID)
		assert.Equal(t, RoleID("DIRECTOR"), out[2].ApproverRoleID)
		assert.Equal(t, 3, out[2].StepOrder)
		assert.True(t, out[2].IsFinalStep)
	})

	t.Run("non-final after final is rejected", func(t *testing.T) {
		_, err := InsertStep(leaveSteps(), step(0, "CEO", false))
		assert.True(t, errors.Is(err, ErrInvalidTemplate))
	})

	t.Run("final in the middle is rejected", func(t *testing.T) {
		_, err := InsertStep(leaveSteps(), step(2, "CEO", true))
		assert.True(t, errors.Is(err, ErrInvalidTemplate))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := InsertStep(leaveSteps(), step(9, "CEO", true))
		assert.True(t, errors.Is(err, ErrInvalidTemplate))
	})

	t.Run("input is not mutated", func(t *testing.T) {
		existing := leaveSteps()
		_, err := InsertStep(existing, step(0, "CEO", true))
		require.NoError(t, err)
		assert.True(t, existing[2].IsFinalStep)
		assert.Equal(t, 3, existing[2].StepOrder)
	})
}

func TestValidateType(t *testing.T) {
	assert.NoError(t, ValidateType(WorkflowType{Code: "LEAVE", Name: LocalizedName{En: "Leave Approval"}}))
	assert.True(t, errors.Is(ValidateType(WorkflowType{Name: LocalizedName{En: "x"}}), ErrInvalidTemplate))
	assert.True(t, errors.Is(ValidateType(WorkflowType{Code: "LEAVE"}), ErrInvalidTemplate))
}
