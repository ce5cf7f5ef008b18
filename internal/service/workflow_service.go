package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/common/logger"
	"github.com/identra/be-hr-workflows/internal/common/tracing"
	"github.com/identra/be-hr-workflows/internal/domain"
	"github.com/identra/be-hr-workflows/internal/resolver"
)

const notifyTimeout = 5 * time.Second

// WorkflowService orchestrates approval requests: initiation, decisions,
// cancellation and the read side.
type WorkflowService struct {
	templates TemplateStore
	requests  RequestStore
	resolver  resolver.Resolver
	notifier  Notifier
	now       func() time.Time
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService. A nil notifier drops events.
func NewWorkflowService(
	templates TemplateStore,
	requests RequestStore,
	res resolver.Resolver,
	notifier Notifier,
	log *logger.Logger,
) *WorkflowService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &WorkflowService{
		templates: templates,
		requests:  requests,
		resolver:  res,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// InitiateInput starts a request for a business transaction.
type InitiateInput struct {
	WorkflowID    int64  `json:"workflow_id" validate:"gt=0"`
	TransactionID string `json:"transaction_id" validate:"required,max=128"`
	RequestorID   int64  `json:"requestor_id" validate:"gt=0"`
}

// DecisionInput is one approver's decision on a step instance.
type DecisionInput struct {
	InstanceID int64  `json:"instance_id" validate:"gt=0"`
	ActorID    int64  `json:"actor_id" validate:"gt=0"`
	Action     string `json:"action" validate:"required"`
	Remarks    string `json:"remarks" validate:"max=2000"`
}

// CancelInput withdraws a pending request.
type CancelInput struct {
	RequestID int64  `json:"request_id" validate:"gt=0"`
	ActorID   int64  `json:"actor_id" validate:"gt=0"`
	Remarks   string `json:"remarks" validate:"max=2000"`
}

// ── Initiation ────────────────────────────────────────────────────────────────

// Initiate loads the active template, resolves an approver for every step
// and persists the request with all of its instances at once. Step 1 is
// left awaiting action.
func (s *WorkflowService) Initiate(ctx context.Context, in InitiateInput) (_ *domain.RequestView, err error) {
	ctx, span := tracing.StartSpan(ctx, "WorkflowService.Initiate",
		attribute.Int64("workflow_id", in.WorkflowID),
		attribute.String("transaction_id", in.TransactionID))
	defer func() { tracing.EndSpan(span, err) }()

	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.GetTemplate(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if len(tmpl.Steps) == 0 {
		return nil, domain.ErrEmptyTemplate.Withf("workflow %d has no steps", in.WorkflowID)
	}

	steps := domain.SortSteps(tmpl.Steps)
	approvers := make([]int64, len(steps))
	for i, step := range steps {
		id, err := s.resolver.Resolve(ctx, step.ApproverRoleID, in.RequestorID)
		if err != nil {
			s.log.Warn().Err(err).
				Int64("workflow_id", in.WorkflowID).
				Int("step_order", step.StepOrder).
				Str("role", string(step.ApproverRoleID)).
				Msg("Approver resolution failed")
			return nil, err
		}
		approvers[i] = id
	}
	tmpl.Steps = steps

	agg, err := domain.NewAggregate(*tmpl, approvers, in.TransactionID, in.RequestorID, s.now())
	if err != nil {
		return nil, err
	}

	created, err := s.requests.CreateAggregate(ctx, agg)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("request_id", created.Request.ID).
		Int64("workflow_id", created.Request.WorkflowID).
		Str("transaction_id", created.Request.TransactionID).
		Int64("requestor_id", created.Request.RequestorID).
		Int("total_steps", len(created.Instances)).
		Msg("Workflow request initiated")

	s.publish(ctx, created.InitiatedEvents())
	view := created.View()
	return &view, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// Decide applies an approve or reject decision. The precondition checks and
// the write happen inside the store's atomic unit, so two racing decisions
// on the same instance cannot both succeed.
func (s *WorkflowService) Decide(ctx context.Context, in DecisionInput) (_ *domain.RequestView, err error) {
	ctx, span := tracing.StartSpan(ctx, "WorkflowService.Decide",
		attribute.Int64("instance_id", in.InstanceID),
		attribute.String("action", in.Action))
	defer func() { tracing.EndSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	action, err := domain.ParseAction(in.Action)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var after *domain.Aggregate
	t, err := s.requests.ApplyDecision(ctx, in.InstanceID, func(agg *domain.Aggregate) (*domain.Transition, error) {
		t, err := agg.Decide(in.InstanceID, in.ActorID, action, in.Remarks, now)
		if err != nil {
			return nil, err
		}
		after = agg
		return t, nil
	})
	if err != nil {
		s.log.Info().Err(err).
			Int64("instance_id", in.InstanceID).
			Int64("actor_id", in.ActorID).
			Str("action", string(action)).
			Msg("Decision refused")
		return nil, err
	}

	s.log.Info().
		Int64("request_id", t.Request.ID).
		Int64("instance_id", in.InstanceID).
		Int64("actor_id", in.ActorID).
		Str("action", string(action)).
		Str("request_status", string(t.Request.CurrentStatus)).
		Int("current_step_order", t.Request.CurrentStepOrder).
		Msg("Decision recorded")

	s.publish(ctx, t.Events)
	view := after.View()
	return &view, nil
}

// Cancel withdraws a pending request on behalf of its requestor.
func (s *WorkflowService) Cancel(ctx context.Context, in CancelInput) (_ *domain.RequestView, err error) {
	ctx, span := tracing.StartSpan(ctx, "WorkflowService.Cancel", attribute.Int64("request_id", in.RequestID))
	defer func() { tracing.EndSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	var after *domain.Aggregate
	t, err := s.requests.ApplyToRequest(ctx, in.RequestID, func(agg *domain.Aggregate) (*domain.Transition, error) {
		t, err := agg.Cancel(in.ActorID, in.Remarks, now)
		if err != nil {
			return nil, err
		}
		after = agg
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("request_id", t.Request.ID).
		Int64("actor_id", in.ActorID).
		Int("skipped_steps", len(t.Instances)).
		Msg("Workflow request cancelled")

	s.publish(ctx, t.Events)
	view := after.View()
	return &view, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetRequestStatus returns a request with all of its instances.
func (s *WorkflowService) GetRequestStatus(ctx context.Context, requestID int64) (*domain.RequestView, error) {
	agg, err := s.requests.GetAggregate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	view := agg.View()
	return &view, nil
}

// ListPendingForApprover returns the approver's inbox.
func (s *WorkflowService) ListPendingForApprover(ctx context.Context, approverID int64) ([]domain.PendingApproval, error) {
	if approverID <= 0 {
		return nil, errors.InvalidInput("approver_id", "is required")
	}
	return s.requests.ListPendingForApprover(ctx, approverID)
}

// GetHistory returns the audit trail of a request oldest-first.
func (s *WorkflowService) GetHistory(ctx context.Context, requestID int64) ([]domain.AuditEntry, error) {
	return s.requests.ListHistory(ctx, requestID)
}

// publish hands committed events to the notifier, detached from the
// caller's cancellation.
func (s *WorkflowService) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, ev := range events {
		s.notifier.Notify(ctx, ev)
	}
}
