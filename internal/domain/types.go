package domain

import "time"

// TerminalStepOrder is stored in current_step_order once a request closes.
const TerminalStepOrder = 0

// RoleID identifies an organizational role required to act on a step.
type RoleID string

// LocalizedName is a bilingual display name.
type LocalizedName struct {
	En string `json:"en"`
	Ar string `json:"ar,omitempty"`
}

// WorkflowType is a reusable approval pipeline definition.
type WorkflowType struct {
	ID          int64         `json:"workflow_id"`
	Code        string        `json:"workflow_code"`
	Name        LocalizedName `json:"name"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// WorkflowStep is one stage of a template.
type WorkflowStep struct {
	ID             int64         `json:"step_id"`
	WorkflowID     int64         `json:"workflow_id"`
	StepOrder      int           `json:"step_order"`
	Name           LocalizedName `json:"name"`
	ApproverRoleID RoleID        `json:"approver_role_id"`
	IsFinalStep    bool          `json:"is_final_step"`
}

// Template is a WorkflowType together with its steps ordered by StepOrder.
type Template struct {
	Type  WorkflowType   `json:"workflow"`
	Steps []WorkflowStep `json:"steps"`
}

// WorkflowRequest is one instantiation of a template against a business transaction.
type WorkflowRequest struct {
	ID               int64         `json:"request_id"`
	WorkflowID       int64         `json:"workflow_id"`
	TransactionID    string        `json:"transaction_id"`
	RequestorID      int64         `json:"requestor_id"`
	RequestDate      time.Time     `json:"request_date"`
	CurrentStepOrder int           `json:"current_step_order"`
	CurrentStatus    RequestStatus `json:"current_status"`
	ActionRemarks    string        `json:"action_remarks,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ApprovalStepInstance is the mutable per-step record of a request.
type ApprovalStepInstance struct {
	ID             int64          `json:"instance_id"`
	RequestID      int64          `json:"request_id"`
	StepOrder      int            `json:"step_order"`
	StepName       LocalizedName  `json:"step_name"`
	ApproverRoleID RoleID         `json:"approver_role_id"`
	ApproverID     int64          `json:"approver_id"`
	Status         InstanceStatus `json:"status"`
	DecidedDate    *time.Time     `json:"decided_date,omitempty"`
	Remarks        string         `json:"remarks,omitempty"`
	IsFinalStep    bool           `json:"is_final_step"`
}

// AuditEntry is one immutable record of a request transition.
type AuditEntry struct {
	ID           int64          `json:"id"`
	RequestID    int64          `json:"request_id"`
	InstanceID   *int64         `json:"instance_id,omitempty"`
	Action       string         `json:"action"`
	PerformedBy  int64          `json:"performed_by"`
	PerformedAt  time.Time      `json:"performed_at"`
	StatusBefore *RequestStatus `json:"status_before,omitempty"`
	StatusAfter  RequestStatus  `json:"status_after"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Audit actions.
const (
	AuditInitiated = "initiated"
	AuditApproved  = "approved"
	AuditRejected  = "rejected"
	AuditCancelled = "cancelled"
)
