package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequestStatus is the lifecycle state of a WorkflowRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending: {RequestApproved, RequestRejected, RequestCancelled},
}

func (s RequestStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further decisions are accepted.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCancelled
}

// CanTransitionTo reports whether s -> to is a legal request transition.
func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	for _, t := range requestTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// ParseRequestStatus parses a status case-insensitively.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	s := RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown request status %q", raw)
	}
	return s, nil
}

func (s *RequestStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseRequestStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// InstanceStatus is the lifecycle state of one ApprovalStepInstance.
type InstanceStatus string

const (
	InstancePending        InstanceStatus = "PENDING"
	InstanceAwaitingAction InstanceStatus = "AWAITING_ACTION"
	InstanceApproved       InstanceStatus = "APPROVED"
	InstanceRejected       InstanceStatus = "REJECTED"
	InstanceSkipped        InstanceStatus = "SKIPPED"
)

// AWAITING_ACTION -> SKIPPED is only taken by request cancellation.
var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstancePending:        {InstanceAwaitingAction, InstanceSkipped},
	InstanceAwaitingAction: {InstanceApproved, InstanceRejected, InstanceSkipped},
}

func (s InstanceStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstancePending, InstanceAwaitingAction, InstanceApproved, InstanceRejected, InstanceSkipped:
		return true
	}
	return false
}

// IsDecided reports whether the instance has reached a final state.
func (s InstanceStatus) IsDecided() bool {
	return s == InstanceApproved || s == InstanceRejected || s == InstanceSkipped
}

// CanTransitionTo reports whether s -> to is a legal instance transition.
func (s InstanceStatus) CanTransitionTo(to InstanceStatus) bool {
	for _, t := range instanceTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// ParseInstanceStatus parses a status case-insensitively.
func ParseInstanceStatus(raw string) (InstanceStatus, error) {
	s := InstanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown instance status %q", raw)
	}
	return s, nil
}

func (s *InstanceStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseInstanceStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Action is an approver's decision on the current step.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

func (a Action) String() string { return string(a) }

// ParseAction parses an action case-insensitively.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", ErrInvalidAction.Withf("unknown action %q, expected APPROVE or REJECT", raw)
}
