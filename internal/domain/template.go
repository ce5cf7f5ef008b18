package domain

import (
	"sort"
	"strings"
)

// ValidateSteps checks a complete step list of one template:
// step_order is contiguous from 1 with no duplicates, and exactly one step is
// final, the one with the highest step_order. An empty list is invalid since
// it has no final step.
func ValidateSteps(steps []WorkflowStep) error {
	if len(steps) == 0 {
		return ErrInvalidTemplate.Withf("template must have at least one step")
	}

	sorted := SortSteps(steps)
	finals := 0
	for i, s := range sorted {
		if s.StepOrder != i+1 {
			return ErrInvalidTemplate.Withf("step_order must be contiguous from 1: expected %d, got %d", i+1, s.StepOrder)
		}
		if strings.TrimSpace(s.Name.En) == "" {
			return ErrInvalidTemplate.Withf("step %d: name is required", s.StepOrder)
		}
		if strings.TrimSpace(string(s.ApproverRoleID)) == "" {
			return ErrInvalidTemplate.Withf("step %d: approver_role_id is required", s.StepOrder)
		}
		if s.IsFinalStep {
			finals++
		}
	}

	if finals != 1 {
		return ErrInvalidTemplate.Withf("template must have exactly one final step, found %d", finals)
	}
	if !sorted[len(sorted)-1].IsFinalStep {
		return ErrInvalidTemplate.Withf("final step must be the last step (step_order %d)", len(sorted))
	}
	return nil
}

// SortSteps returns a copy of steps ordered by StepOrder.
func SortSteps(steps []WorkflowStep) []WorkflowStep {
	out := make([]WorkflowStep, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

// InsertStep returns the step list that results from inserting step into
// existing. A zero StepOrder appends. Steps at or after the insertion point
// shift down by one. Appending a new final step demotes the previous final
// step; every other combination must already satisfy ValidateSteps.
func InsertStep(existing []WorkflowStep, step WorkflowStep) ([]WorkflowStep, error) {
	sorted := SortSteps(existing)
	n := len(sorted)

	pos := step.StepOrder
	if pos == 0 {
		pos = n + 1
	}
	if pos < 1 || pos > n+1 {
		return nil, ErrInvalidTemplate.Withf("step_order %d out of range 1..%d", pos, n+1)
	}

	out := make([]WorkflowStep, 0, n+1)
	for _, s := range sorted {
		if s.StepOrder >= pos {
			s.StepOrder++
		}
		if step.IsFinalStep && pos == n+1 {
			s.IsFinalStep = false
		}
		out = append(out, s)
	}
	step.StepOrder = pos
	out = append(out, step)

	out = SortSteps(out)
	if err := ValidateSteps(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateType checks the header fields of a template.
func ValidateType(t WorkflowType) error {
	if strings.TrimSpace(t.Code) == "" {
		return ErrInvalidTemplate.Withf("workflow_code is required")
	}
	if strings.TrimSpace(t.Name.En) == "" {
		return ErrInvalidTemplate.Withf("name is required")
	}
	return nil
}
