package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/be-hr-workflows/internal/common/errors"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	requestor = int64(12)
	manager   = int64(40)
	hr        = int64(50)
	director  = int64(60)
)

// newLeaveAggregate builds the three-step leave approval with ids assigned
// the way a store would.
func newLeaveAggregate(t *testing.T) *Aggregate {
	t.Helper()
	tmpl := Template{
		Type:  WorkflowType{ID: 7, Code: "LEAVE", Name: LocalizedName{En: "Leave Approval"}, IsActive: true},
		Steps: leaveSteps(),
	}
	agg, err := NewAggregate(tmpl, []int64{manager, hr, director}, "501", requestor, t0)
	require.NoError(t, err)

	agg.Request.ID = 100
	for i := range agg.Instances {
		agg.Instances[i].ID = int64(i + 1)
		agg.Instances[i].RequestID = 100
	}
	return agg
}

func statuses(a *Aggregate) []InstanceStatus {
	out := make([]InstanceStatus, len(a.Instances))
	for i, inst := range a.Instances {
		out[i] = inst.Status
	}
	return out
}

func TestNewAggregate(t *testing.T) {
	agg := newLeaveAggregate(t)

	assert.Equal(t, RequestPending, agg.Request.CurrentStatus)
	assert.Equal(t, 1, agg.Request.CurrentStepOrder)
	assert.Equal(t, int64(7), agg.Request.WorkflowID)
	assert.Equal(t, "501", agg.Request.TransactionID)
	require.Len(t, agg.Instances, 3)
	for i, inst := range agg.Instances {
		assert.Equal(t, i+1, inst.StepOrder)
	}
	assert.Equal(t, []InstanceStatus{InstanceAwaitingAction, InstancePending, InstancePending}, statuses(agg))
	assert.Equal(t, manager, agg.Current().ApproverID)
	assert.Equal(t, "MANAGER approval", agg.Instances[0].StepName.En)
	assert.True(t, agg.Instances[2].IsFinalStep)
	assert.NoError(t, agg.CheckInvariants())
}

func TestNewAggregate_Errors(t *testing.T) {
	_, err := NewAggregate(Template{Type: WorkflowType{ID: 1}}, nil, "1", requestor, t0)
	assert.True(t, errors.Is(err, ErrEmptyTemplate))

	_, err = NewAggregate(Template{Steps: leaveSteps()}, []int64{manager}, "1", requestor, t0)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))

	broken := []WorkflowStep{step(1, "MANAGER", false), step(3, "HR", true)}
	_, err = NewAggregate(Template{Steps: broken}, []int64{manager, hr}, "1", requestor, t0)
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

func TestDecide_ApproveAdvancesLinearly(t *testing.T) {
	agg := newLeaveAggregate(t)
	now := t0.Add(time.Hour)

	tr, err := agg.Decide(1, manager, ActionApprove, " looks fine ", now)
	require.NoError(t, err)

	assert.Equal(t, []InstanceStatus{InstanceApproved, InstanceAwaitingAction, InstancePending}, statuses(agg))
	assert.Equal(t, RequestPending, agg.Request.CurrentStatus)
	assert.Equal(t, 2, agg.Request.CurrentStepOrder)
	assert.Equal(t, "looks fine", agg.Instances[0].Remarks)
	require.NotNil(t, agg.Instances[0].DecidedDate)
	assert.Equal(t, now, *agg.Instances[0].DecidedDate)
	assert.NoError(t, agg.CheckInvariants())

	require.Len(t, tr.Instances, 2)
	assert.Equal(t, InstanceAwaitingAction, tr.Instances[0].From)
	assert.Equal(t, InstanceApproved, tr.Instances[0].Instance.Status)
	assert.Equal(t, InstancePending, tr.Instances[1].From)
	assert.Equal(t, int64(2), tr.Instances[1].Instance.ID)
	assert.Equal(t, RequestPending, tr.RequestFrom)
	assert.Equal(t, AuditApproved, tr.Audit.Action)

	require.Len(t, tr.Events, 2)
	assert.Equal(t, EventStepCompleted, tr.Events[0].Type)
	assert.Equal(t, EventStepActivated, tr.Events[1].Type)
	assert.Equal(t, []int64{hr}, tr.Events[1].Recipients)
}

func TestDecide_ApproveFinalStep(t *testing.T) {
	agg := newLeaveAggregate(t)
	_, err := agg.Decide(1, manager, ActionApprove, "", t0)
	require.NoError(t, err)
	_, err = agg.Decide(2, hr, ActionApprove, "", t0)
	require.NoError(t, err)
	tr, err := agg.Decide(3, director, ActionApprove, "approved", t0)
	require.NoError(t, err)

	assert.Equal(t, RequestApproved, agg.Request.CurrentStatus)
	assert.Equal(t, TerminalStepOrder, agg.Request.CurrentStepOrder)
	assert.Nil(t, agg.Current())
	assert.NotNil(t, agg.Request.CompletedAt)
	assert.Equal(t, "approved", agg.Request.ActionRemarks)
	assert.NoError(t, agg.CheckInvariants())

	require.Len(t, tr.Instances, 1)
	assert.Equal(t, EventRequestApproved, tr.Events[len(tr.Events)-1].Type)
	assert.Equal(t, []int64{requestor}, tr.Events[len(tr.Events)-1].Recipients)
}

func TestDecide_RejectSkipsRemaining(t *testing.T) {
	agg := newLeaveAggregate(t)
	tr, err := agg.Decide(1, manager, ActionReject, "insufficient balance", t0)
	require.NoError(t, err)

	assert.Equal(t, []InstanceStatus{InstanceRejected, InstanceSkipped, InstanceSkipped}, statuses(agg))
	assert.Equal(t, RequestRejected, agg.Request.CurrentStatus)
	assert.Equal(t, TerminalStepOrder, agg.Request.CurrentStepOrder)
	assert.Nil(t, agg.Current())
	assert.NoError(t, agg.CheckInvariants())
	require.Len(t, tr.Instances, 3)
	assert.Equal(t, AuditRejected, tr.Audit.Action)
	assert.Equal(t, RequestRejected, tr.Audit.StatusAfter)
}

func TestDecide_Preconditions(t *testing.T) {
	t.Run("not yet reached", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(2, hr, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrNotActionable))
	})

	t.Run("wrong actor", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, hr, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrNotAuthorized))
		assert.Equal(t, InstanceAwaitingAction, agg.Instances[0].Status)
		assert.Nil(t, agg.Instances[0].DecidedDate)
	})

	t.Run("already decided", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, manager, ActionApprove, "", t0)
		require.NoError(t, err)
		before := agg.Clone()
		_, err = agg.Decide(1, manager, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrNotActionable))
		assert.Equal(t, before, agg)
	})

	t.Run("decided after rejection", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, manager, ActionReject, "", t0)
		require.NoError(t, err)
		before := agg.Clone()
		for _, action := range []Action{ActionApprove, ActionReject} {
			_, err = agg.Decide(1, manager, action, "", t0)
			assert.True(t, errors.Is(err, ErrNotActionable), "repeated %s", action)
		}
		_, err = agg.Decide(3, director, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrNotActionable), "skipped instance")
		assert.Equal(t, before, agg)
	})

	t.Run("final step decided twice", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		for _, step := range []struct {
			id    int64
			actor int64
		}{{1, manager}, {2, hr}, {3, director}} {
			_, err := agg.Decide(step.id, step.actor, ActionApprove, "", t0)
			require.NoError(t, err)
		}
		require.Equal(t, RequestApproved, agg.Request.CurrentStatus)

		_, err := agg.Decide(3, director, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrNotActionable))
	})

	t.Run("closed request with awaiting instance", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		agg.Request.CurrentStatus = RequestCancelled
		_, err := agg.Decide(1, manager, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrRequestAlreadyClosed))
		assert.Equal(t, InstanceAwaitingAction, agg.Instances[0].Status)
	})

	t.Run("unknown instance", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(99, manager, ActionApprove, "", t0)
		assert.True(t, errors.Is(err, ErrInstanceNotFound))
	})

	t.Run("bad action", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, manager, Action("ESCALATE"), "", t0)
		assert.True(t, errors.Is(err, ErrInvalidAction))
	})
}

func TestScenario_LeaveApproval(t *testing.T) {
	agg := newLeaveAggregate(t)
	assert.Equal(t, manager, agg.Instances[0].ApproverID)

	_, err := agg.Decide(1, manager, ActionApprove, "", t0)
	require.NoError(t, err)
	assert.Equal(t, InstanceApproved, agg.Instances[0].Status)
	assert.Equal(t, InstanceAwaitingAction, agg.Instances[1].Status)
	assert.Equal(t, RequestPending, agg.Request.CurrentStatus)

	_, err = agg.Decide(2, hr, ActionReject, "peak season", t0)
	require.NoError(t, err)
	assert.Equal(t, InstanceRejected, agg.Instances[1].Status)
	assert.Equal(t, InstanceSkipped, agg.Instances[2].Status)
	assert.Equal(t, RequestRejected, agg.Request.CurrentStatus)

	_, err = agg.Decide(3, director, ActionApprove, "", t0)
	assert.True(t, errors.Is(err, ErrNotActionable))
}

func TestCancel(t *testing.T) {
	t.Run("requestor cancels", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, manager, ActionApprove, "", t0)
		require.NoError(t, err)

		tr, err := agg.Cancel(requestor, "plans changed", t0)
		require.NoError(t, err)
		assert.Equal(t, RequestCancelled, agg.Request.CurrentStatus)
		assert.Equal(t, []InstanceStatus{InstanceApproved, InstanceSkipped, InstanceSkipped}, statuses(agg))
		assert.NoError(t, agg.CheckInvariants())
		require.Len(t, tr.Events, 1)
		assert.Equal(t, []int64{hr}, tr.Events[0].Recipients)
		assert.Len(t, tr.Instances, 2)
	})

	t.Run("only the requestor", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Cancel(manager, "", t0)
		assert.True(t, errors.Is(err, ErrNotAuthorized))
	})

	t.Run("closed request", func(t *testing.T) {
		agg := newLeaveAggregate(t)
		_, err := agg.Decide(1, manager, ActionReject, "", t0)
		require.NoError(t, err)
		_, err = agg.Cancel(requestor, "", t0)
		assert.True(t, errors.Is(err, ErrRequestAlreadyClosed))
	})
}

func TestInitiatedEvents(t *testing.T) {
	agg := newLeaveAggregate(t)
	events := agg.InitiatedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventRequestInitiated, events[0].Type)
	assert.Equal(t, EventStepActivated, events[1].Type)
	assert.Equal(t, int64(1), events[1].InstanceID)
	assert.Equal(t, []int64{manager}, events[1].Recipients)

	audit := agg.InitiatedAudit()
	assert.Equal(t, AuditInitiated, audit.Action)
	assert.Equal(t, requestor, audit.PerformedBy)
}

func TestClone_IsDeep(t *testing.T) {
	agg := newLeaveAggregate(t)
	_, err := agg.Decide(1, manager, ActionApprove, "", t0)
	require.NoError(t, err)

	c := agg.Clone()
	c.Instances[0].Status = InstanceRejected
	*c.Instances[0].DecidedDate = t0.Add(time.Hour)

	assert.Equal(t, InstanceApproved, agg.Instances[0].Status)
	assert.Equal(t, t0, *agg.Instances[0].DecidedDate)
}
