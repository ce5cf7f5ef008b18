package domain

import "time"

// EventType names an outbound workflow notification.
type EventType string

const (
	EventRequestInitiated EventType = "request_initiated"
	EventStepActivated    EventType = "step_activated"
	EventStepCompleted    EventType = "step_completed"
	EventRequestApproved  EventType = "request_approved"
	EventRequestRejected  EventType = "request_rejected"
	EventRequestCancelled EventType = "request_cancelled"
)

// Event is emitted after a transition has been committed. Recipients are
// employee ids that should hear about it.
type Event struct {
	Type          EventType `json:"event_type"`
	RequestID     int64     `json:"request_id"`
	WorkflowID    int64     `json:"workflow_id"`
	TransactionID string    `json:"transaction_id"`
	InstanceID    int64     `json:"instance_id,omitempty"`
	StepOrder     int       `json:"step_order,omitempty"`
	Status        string    `json:"status"`
	ActorID       int64     `json:"actor_id"`
	Recipients    []int64   `json:"recipients"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (a *Aggregate) event(t EventType, inst *ApprovalStepInstance, status string, actor int64, at time.Time, recipients ...int64) Event {
	e := Event{
		Type:          t,
		RequestID:     a.Request.ID,
		WorkflowID:    a.Request.WorkflowID,
		TransactionID: a.Request.TransactionID,
		Status:        status,
		ActorID:       actor,
		Recipients:    recipients,
		OccurredAt:    at,
	}
	if inst != nil {
		e.InstanceID = inst.ID
		e.StepOrder = inst.StepOrder
	}
	return e
}
