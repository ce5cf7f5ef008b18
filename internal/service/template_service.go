package service

import (
	"context"

	"github.com/identra/be-hr-workflows/internal/common/logger"
	"github.com/identra/be-hr-workflows/internal/domain"
)

// TemplateService manages workflow templates and their steps.
type TemplateService struct {
	templates TemplateStore
	log       *logger.Logger
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(templates TemplateStore, log *logger.Logger) *TemplateService {
	return &TemplateService{templates: templates, log: log}
}

// StepInput defines one step of a template.
type StepInput struct {
	StepOrder      int    `json:"step_order" validate:"gte=0"`
	NameEn         string `json:"name_en" validate:"required,max=200"`
	NameAr         string `json:"name_ar" validate:"max=200"`
	ApproverRoleID string `json:"approver_role_id" validate:"required,max=64"`
	IsFinalStep    bool   `json:"is_final_step"`
}

func (in StepInput) toDomain() domain.WorkflowStep {
	return domain.WorkflowStep{
		StepOrder:      in.StepOrder,
		Name:           domain.LocalizedName{En: in.NameEn, Ar: in.NameAr},
		ApproverRoleID: domain.RoleID(in.ApproverRoleID),
		IsFinalStep:    in.IsFinalStep,
	}
}

// CreateTemplateInput creates a template, optionally with its steps.
type CreateTemplateInput struct {
	Code        string      `json:"workflow_code" validate:"required,max=64"`
	NameEn      string      `json:"name_en" validate:"required,max=200"`
	NameAr      string      `json:"name_ar" validate:"max=200"`
	Description string      `json:"description" validate:"max=2000"`
	Inactive    bool        `json:"inactive"`
	Steps       []StepInput `json:"steps" validate:"dive"`
}

// CreateTemplate creates a workflow type. When steps are supplied they are
// validated as a whole before the type is written.
func (s *TemplateService) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*domain.Template, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	steps := make([]domain.WorkflowStep, len(in.Steps))
	for i, st := range in.Steps {
		steps[i] = st.toDomain()
	}
	if len(steps) > 0 {
		if err := domain.ValidateSteps(steps); err != nil {
			return nil, err
		}
	}

	tmpl, err := s.templates.CreateTemplate(ctx, domain.WorkflowType{
		Code:        in.Code,
		Name:        domain.LocalizedName{En: in.NameEn, Ar: in.NameAr},
		Description: in.Description,
		IsActive:    !in.Inactive,
	}, steps)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("workflow_id", tmpl.Type.ID).
		Str("workflow_code", tmpl.Type.Code).
		Int("total_steps", len(tmpl.Steps)).
		Msg("Workflow template created")
	return tmpl, nil
}

// GetTemplate returns a template whether or not it is active.
func (s *TemplateService) GetTemplate(ctx context.Context, workflowID int64) (*domain.Template, error) {
	return s.templates.GetTemplateForHistory(ctx, workflowID)
}

// GetTemplateByCode looks a template up by workflow_code.
func (s *TemplateService) GetTemplateByCode(ctx context.Context, code string) (*domain.Template, error) {
	return s.templates.GetTemplateByCode(ctx, code)
}

// ListTemplates returns workflow types, optionally only the active ones.
func (s *TemplateService) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.WorkflowType, error) {
	return s.templates.ListTemplates(ctx, activeOnly)
}

// SetTemplateActive activates or retires a template. In-flight requests keep
// their copied steps either way.
func (s *TemplateService) SetTemplateActive(ctx context.Context, workflowID int64, active bool) (*domain.WorkflowType, error) {
	wt, err := s.templates.SetTemplateActive(ctx, workflowID, active)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("workflow_id", workflowID).Bool("active", active).Msg("Workflow template activation changed")
	return wt, nil
}

// AddStep inserts a step at in.StepOrder (0 appends).
func (s *TemplateService) AddStep(ctx context.Context, workflowID int64, in StepInput) (*domain.Template, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.AddStep(ctx, workflowID, in.toDomain())
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("workflow_id", workflowID).
		Str("role", in.ApproverRoleID).
		Int("total_steps", len(tmpl.Steps)).
		Msg("Workflow step added")
	return tmpl, nil
}

// ReorderSteps replaces the whole step list of a template.
func (s *TemplateService) ReorderSteps(ctx context.Context, workflowID int64, in []StepInput) (*domain.Template, error) {
	steps := make([]domain.WorkflowStep, len(in))
	for i, st := range in {
		if err := validateInput(st); err != nil {
			return nil, err
		}
		steps[i] = st.toDomain()
	}
	tmpl, err := s.templates.ReorderSteps(ctx, workflowID, steps)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("workflow_id", workflowID).Int("total_steps", len(tmpl.Steps)).Msg("Workflow steps replaced")
	return tmpl, nil
}
