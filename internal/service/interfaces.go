package service

import (
	"context"

	"github.com/identra/be-hr-workflows/internal/domain"
)

// TemplateStore persists workflow templates.
type TemplateStore interface {
	// CreateTemplate writes the type and its initial steps atomically.
	CreateTemplate(ctx context.Context, t domain.WorkflowType, steps []domain.WorkflowStep) (*domain.Template, error)
	// GetTemplate fails with TemplateInactive for inactive templates.
	GetTemplate(ctx context.Context, workflowID int64) (*domain.Template, error)
	GetTemplateForHistory(ctx context.Context, workflowID int64) (*domain.Template, error)
	GetTemplateByCode(ctx context.Context, code string) (*domain.Template, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]domain.WorkflowType, error)
	SetTemplateActive(ctx context.Context, workflowID int64, active bool) (*domain.WorkflowType, error)
	AddStep(ctx context.Context, workflowID int64, step domain.WorkflowStep) (*domain.Template, error)
	ReorderSteps(ctx context.Context, workflowID int64, steps []domain.WorkflowStep) (*domain.Template, error)
}

// RequestStore persists request aggregates. ApplyDecision and ApplyToRequest
// run the mutation and the write as one atomic unit.
type RequestStore interface {
	CreateAggregate(ctx context.Context, agg *domain.Aggregate) (*domain.Aggregate, error)
	GetAggregate(ctx context.Context, requestID int64) (*domain.Aggregate, error)
	ApplyDecision(ctx context.Context, instanceID int64, fn domain.Mutation) (*domain.Transition, error)
	ApplyToRequest(ctx context.Context, requestID int64, fn domain.Mutation) (*domain.Transition, error)
	ListPendingForApprover(ctx context.Context, approverID int64) ([]domain.PendingApproval, error)
	ListHistory(ctx context.Context, requestID int64) ([]domain.AuditEntry, error)
}

// Notifier delivers committed workflow events. Implementations must not
// block for long and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Event) {}
