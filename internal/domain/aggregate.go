package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/identra/be-hr-workflows/internal/common/errors"
)

// Aggregate is a WorkflowRequest together with all of its step instances,
// ordered by StepOrder. It is the unit of persistence and of locking.
type Aggregate struct {
	Request   WorkflowRequest        `json:"request"`
	Instances []ApprovalStepInstance `json:"instances"`
}

// InstanceChange records one instance transition. From is the status the
// store must still observe for the write to apply.
type InstanceChange struct {
	Instance ApprovalStepInstance
	From     InstanceStatus
}

// Transition is the result of applying one operation to an aggregate.
type Transition struct {
	RequestFrom RequestStatus
	Request     WorkflowRequest
	Instances   []InstanceChange
	Audit       AuditEntry
	Events      []Event
}

// NewAggregate materializes a pending request for tmpl. approvers[i] is the
// resolved approver for tmpl.Steps[i] (in StepOrder). IDs are left zero for
// the store to assign.
func NewAggregate(tmpl Template, approvers []int64, transactionID string, requestorID int64, now time.Time) (*Aggregate, error) {
	if len(tmpl.Steps) == 0 {
		return nil, ErrEmptyTemplate.Withf("workflow %d has no steps", tmpl.Type.ID)
	}
	steps := SortSteps(tmpl.Steps)
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	if len(approvers) != len(steps) {
		return nil, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("resolved %d approvers for %d steps", len(approvers), len(steps)))
	}

	agg := &Aggregate{
		Request: WorkflowRequest{
			WorkflowID:       tmpl.Type.ID,
			TransactionID:    transactionID,
			RequestorID:      requestorID,
			RequestDate:      now,
			CurrentStepOrder: 1,
			CurrentStatus:    RequestPending,
			UpdatedAt:        now,
		},
		Instances: make([]ApprovalStepInstance, 0, len(steps)),
	}

	for i, s := range steps {
		status := InstancePending
		if s.StepOrder == 1 {
			status = InstanceAwaitingAction
		}
		agg.Instances = append(agg.Instances, ApprovalStepInstance{
			StepOrder:      s.StepOrder,
			StepName:       s.Name,
			ApproverRoleID: s.ApproverRoleID,
			ApproverID:     approvers[i],
			Status:         status,
			IsFinalStep:    s.IsFinalStep,
		})
	}
	return agg, nil
}

// Current returns the instance awaiting action, or nil.
func (a *Aggregate) Current() *ApprovalStepInstance {
	for i := range a.Instances {
		if a.Instances[i].Status == InstanceAwaitingAction {
			return &a.Instances[i]
		}
	}
	return nil
}

// Instance returns the instance with the given id, or nil.
func (a *Aggregate) Instance(id int64) *ApprovalStepInstance {
	for i := range a.Instances {
		if a.Instances[i].ID == id {
			return &a.Instances[i]
		}
	}
	return nil
}

func (a *Aggregate) byOrder(order int) *ApprovalStepInstance {
	for i := range a.Instances {
		if a.Instances[i].StepOrder == order {
			return &a.Instances[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (a *Aggregate) Clone() *Aggregate {
	out := &Aggregate{Request: a.Request, Instances: make([]ApprovalStepInstance, len(a.Instances))}
	if a.Request.CompletedAt != nil {
		t := *a.Request.CompletedAt
		out.Request.CompletedAt = &t
	}
	copy(out.Instances, a.Instances)
	for i := range out.Instances {
		if d := out.Instances[i].DecidedDate; d != nil {
			t := *d
			out.Instances[i].DecidedDate = &t
		}
	}
	return out
}

// InitiatedAudit is the audit entry written with a new aggregate.
func (a *Aggregate) InitiatedAudit() AuditEntry {
	return AuditEntry{
		RequestID:   a.Request.ID,
		Action:      AuditInitiated,
		PerformedBy: a.Request.RequestorID,
		PerformedAt: a.Request.RequestDate,
		StatusAfter: RequestPending,
		Metadata: map[string]any{
			"workflow_id":    a.Request.WorkflowID,
			"transaction_id": a.Request.TransactionID,
			"total_steps":    len(a.Instances),
		},
	}
}

// InitiatedEvents returns the events for a freshly created aggregate.
// Call after the store has assigned ids.
func (a *Aggregate) InitiatedEvents() []Event {
	at := a.Request.RequestDate
	events := []Event{
		a.event(EventRequestInitiated, nil, string(RequestPending), a.Request.RequestorID, at, a.Request.RequestorID),
	}
	if cur := a.Current(); cur != nil {
		events = append(events, a.event(EventStepActivated, cur, string(cur.Status), a.Request.RequestorID, at, cur.ApproverID))
	}
	return events
}

func (a *Aggregate) move(inst *ApprovalStepInstance, to InstanceStatus) (InstanceChange, error) {
	from := inst.Status
	if !from.CanTransitionTo(to) {
		return InstanceChange{}, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("illegal instance transition %s -> %s (instance %d)", from, to, inst.ID))
	}
	inst.Status = to
	return InstanceChange{Instance: *inst, From: from}, nil
}

func (a *Aggregate) close(to RequestStatus, remarks string, now time.Time) error {
	if !a.Request.CurrentStatus.CanTransitionTo(to) {
		return ErrRequestAlreadyClosed.Withf("request %d is %s", a.Request.ID, a.Request.CurrentStatus)
	}
	a.Request.CurrentStatus = to
	a.Request.CurrentStepOrder = TerminalStepOrder
	a.Request.ActionRemarks = remarks
	a.Request.CompletedAt = &now
	a.Request.UpdatedAt = now
	return nil
}

// Decide applies an approver's decision to instanceID. Preconditions are
// checked in order: the instance must be AWAITING_ACTION, actorID must be
// its approver, and the request must be PENDING. On success the
// aggregate is mutated in place and the returned Transition describes every
// row that changed.
func (a *Aggregate) Decide(instanceID, actorID int64, action Action, remarks string, now time.Time) (*Transition, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, ErrInvalidAction.Withf("unknown action %q", action)
	}

	inst := a.Instance(instanceID)
	if inst == nil {
		return nil, ErrInstanceNotFound.Withf("instance %d does not belong to request %d", instanceID, a.Request.ID)
	}
	if inst.Status != InstanceAwaitingAction {
		return nil, ErrNotActionable.Withf("instance %d is %s", inst.ID, inst.Status)
	}
	if inst.ApproverID != actorID {
		return nil, ErrNotAuthorized.Withf("employee %d is not the approver of instance %d", actorID, inst.ID)
	}
	if a.Request.CurrentStatus.IsTerminal() {
		return nil, ErrRequestAlreadyClosed.Withf("request %d is %s", a.Request.ID, a.Request.CurrentStatus)
	}

	remarks = strings.TrimSpace(remarks)
	from := a.Request.CurrentStatus
	t := &Transition{RequestFrom: from}

	inst.DecidedDate = &now
	inst.Remarks = remarks

	switch action {
	case ActionApprove:
		change, err := a.move(inst, InstanceApproved)
		if err != nil {
			return nil, err
		}
		t.Instances = append(t.Instances, change)
		t.Events = append(t.Events, a.event(EventStepCompleted, inst, string(InstanceApproved), actorID, now, a.Request.RequestorID))

		if inst.IsFinalStep {
			if err := a.close(RequestApproved, remarks, now); err != nil {
				return nil, err
			}
			t.Events = append(t.Events, a.event(EventRequestApproved, inst, string(RequestApproved), actorID, now, a.Request.RequestorID))
		} else {
			next := a.byOrder(inst.StepOrder + 1)
			if next == nil {
				return nil, errors.New(errors.ErrCodeInternal,
					fmt.Sprintf("request %d has no step after %d", a.Request.ID, inst.StepOrder))
			}
			change, err := a.move(next, InstanceAwaitingAction)
			if err != nil {
				return nil, err
			}
			a.Request.CurrentStepOrder = next.StepOrder
			a.Request.ActionRemarks = remarks
			a.Request.UpdatedAt = now
			t.Instances = append(t.Instances, change)
			t.Events = append(t.Events, a.event(EventStepActivated, next, string(InstanceAwaitingAction), actorID, now, next.ApproverID))
		}

	case ActionReject:
		change, err := a.move(inst, InstanceRejected)
		if err != nil {
			return nil, err
		}
		t.Instances = append(t.Instances, change)
		for i := range a.Instances {
			other := &a.Instances[i]
			if other.Status != InstancePending {
				continue
			}
			change, err := a.move(other, InstanceSkipped)
			if err != nil {
				return nil, err
			}
			t.Instances = append(t.Instances, change)
		}
		if err := a.close(RequestRejected, remarks, now); err != nil {
			return nil, err
		}
		t.Events = append(t.Events,
			a.event(EventStepCompleted, inst, string(InstanceRejected), actorID, now, a.Request.RequestorID),
			a.event(EventRequestRejected, inst, string(RequestRejected), actorID, now, a.Request.RequestorID),
		)
	}

	t.Request = a.Request
	instanceID = inst.ID
	auditAction := AuditApproved
	if action == ActionReject {
		auditAction = AuditRejected
	}
	t.Audit = AuditEntry{
		RequestID:    a.Request.ID,
		InstanceID:   &instanceID,
		Action:       auditAction,
		PerformedBy:  actorID,
		PerformedAt:  now,
		StatusBefore: &from,
		StatusAfter:  a.Request.CurrentStatus,
		Metadata: map[string]any{
			"step_order": inst.StepOrder,
			"remarks":    remarks,
		},
	}
	return t, nil
}

// Cancel withdraws a pending request on behalf of its requestor. Every
// instance not yet decided becomes SKIPPED.
func (a *Aggregate) Cancel(actorID int64, remarks string, now time.Time) (*Transition, error) {
	if a.Request.CurrentStatus.IsTerminal() {
		return nil, ErrRequestAlreadyClosed.Withf("request %d is %s", a.Request.ID, a.Request.CurrentStatus)
	}
	if a.Request.RequestorID != actorID {
		return nil, ErrNotAuthorized.Withf("only the requestor can cancel request %d", a.Request.ID)
	}

	remarks = strings.TrimSpace(remarks)
	from := a.Request.CurrentStatus
	t := &Transition{RequestFrom: from}

	var notify []int64
	for i := range a.Instances {
		inst := &a.Instances[i]
		if inst.Status.IsDecided() {
			continue
		}
		if inst.Status == InstanceAwaitingAction {
			notify = append(notify, inst.ApproverID)
		}
		change, err := a.move(inst, InstanceSkipped)
		if err != nil {
			return nil, err
		}
		t.Instances = append(t.Instances, change)
	}

	if err := a.close(RequestCancelled, remarks, now); err != nil {
		return nil, err
	}
	t.Request = a.Request
	t.Events = []Event{a.event(EventRequestCancelled, nil, string(RequestCancelled), actorID, now, notify...)}
	t.Audit = AuditEntry{
		RequestID:    a.Request.ID,
		Action:       AuditCancelled,
		PerformedBy:  actorID,
		PerformedAt:  now,
		StatusBefore: &from,
		StatusAfter:  RequestCancelled,
		Metadata:     map[string]any{"remarks": remarks},
	}
	return t, nil
}

// CheckInvariants verifies the single-actionable and terminal rules.
func (a *Aggregate) CheckInvariants() error {
	awaiting := 0
	for _, inst := range a.Instances {
		if inst.Status != InstanceAwaitingAction {
			continue
		}
		awaiting++
		if inst.StepOrder != a.Request.CurrentStepOrder {
			return fmt.Errorf("awaiting instance %d has step_order %d, request points at %d",
				inst.ID, inst.StepOrder, a.Request.CurrentStepOrder)
		}
	}
	if awaiting > 1 {
		return fmt.Errorf("request %d has %d instances awaiting action", a.Request.ID, awaiting)
	}
	if a.Request.CurrentStatus.IsTerminal() {
		if awaiting != 0 {
			return fmt.Errorf("request %d is %s but has an instance awaiting action", a.Request.ID, a.Request.CurrentStatus)
		}
		if a.Request.CurrentStepOrder != TerminalStepOrder {
			return fmt.Errorf("request %d is %s but points at step %d", a.Request.ID, a.Request.CurrentStatus, a.Request.CurrentStepOrder)
		}
	} else if awaiting != 1 {
		return fmt.Errorf("pending request %d has no instance awaiting action", a.Request.ID)
	}
	return nil
}

// Mutation computes a transition on an aggregate the store has locked.
type Mutation func(agg *Aggregate) (*Transition, error)

// PendingApproval is one entry of an approver's inbox.
type PendingApproval struct {
	Request  WorkflowRequest      `json:"request"`
	Instance ApprovalStepInstance `json:"instance"`
}

// RequestView is the read model returned to callers: the request, every
// instance, and the one awaiting action if the request is still open.
type RequestView struct {
	Request   WorkflowRequest        `json:"request"`
	Instances []ApprovalStepInstance `json:"instances"`
	Current   *ApprovalStepInstance  `json:"current_instance,omitempty"`
}

// View returns a detached RequestView of a.
func (a *Aggregate) View() RequestView {
	c := a.Clone()
	v := RequestView{Request: c.Request, Instances: c.Instances}
	if cur := c.Current(); cur != nil {
		inst := *cur
		v.Current = &inst
	}
	return v
}
