package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/identra/be-hr-workflows/internal/common/database"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

// TemplateRepository persists workflow types and their ordered steps.
// Step lists are validated as a whole before anything is written.
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const typeColumns = `
	workflow_id, workflow_code, name_en, name_ar, description,
	is_active, created_at, updated_at
`

const stepColumns = `
	step_id, workflow_id, step_order, name_en, name_ar,
	approver_role_id, is_final_step
`

// CreateTemplate inserts a workflow type together with its initial steps in
// one transaction. steps may be empty.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, t domain.WorkflowType, steps []domain.WorkflowStep) (*domain.Template, error) {
	if err := domain.ValidateType(t); err != nil {
		return nil, err
	}
	if len(steps) > 0 {
		steps = domain.SortSteps(steps)
		if err := domain.ValidateSteps(steps); err != nil {
			return nil, err
		}
	}

	query := `
		INSERT INTO workflow_types
		    (workflow_code, name_en, name_ar, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + typeColumns

	var out *domain.Template
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		wt, err := scanType(tx.QueryRow(ctx, query,
			strings.TrimSpace(t.Code),
			t.Name.En,
			t.Name.Ar,
			t.Description,
			t.IsActive,
		))
		if err != nil {
			if database.IsUniqueViolation(err, "uq_workflow_types_code") {
				return domain.ErrDuplicateCode.Withf("workflow code %q already exists", t.Code)
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow type")
		}

		saved := make([]domain.WorkflowStep, len(steps))
		copy(saved, steps)
		for i := range saved {
			saved[i].ID = 0
			saved[i].WorkflowID = wt.ID
			if err := insertStep(ctx, tx, &saved[i]); err != nil {
				return err
			}
		}
		out = &domain.Template{Type: *wt, Steps: saved}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTemplate returns an active template. Inactive templates report
// TemplateInactive so callers can tell them apart from missing ones.
func (r *TemplateRepository) GetTemplate(ctx context.Context, workflowID int64) (*domain.Template, error) {
	tmpl, err := r.GetTemplateForHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Type.IsActive {
		return nil, domain.ErrTemplateInactive.Withf("workflow %d is inactive", workflowID)
	}
	return tmpl, nil
}

// GetTemplateForHistory returns a template regardless of is_active.
func (r *TemplateRepository) GetTemplateForHistory(ctx context.Context, workflowID int64) (*domain.Template, error) {
	return getTemplate(ctx, r.db, `WHERE workflow_id = $1`, workflowID)
}

// GetTemplateByCode looks a template up by its unique business code.
func (r *TemplateRepository) GetTemplateByCode(ctx context.Context, code string) (*domain.Template, error) {
	return getTemplate(ctx, r.db, `WHERE workflow_code = $1`, strings.TrimSpace(code))
}

// ListTemplates returns workflow types ordered by id, optionally only active ones.
func (r *TemplateRepository) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.WorkflowType, error) {
	query := `
		SELECT ` + typeColumns + `
		FROM workflow_types
		WHERE ($1 = FALSE OR is_active = TRUE)
		ORDER BY workflow_id ASC
	`

	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow types")
	}
	defer rows.Close()

	types := []domain.WorkflowType{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow type")
		}
		types = append(types, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate workflow types")
	}
	return types, nil
}

// SetTemplateActive toggles is_active. Requests already in flight are not affected.
func (r *TemplateRepository) SetTemplateActive(ctx context.Context, workflowID int64, active bool) (*domain.WorkflowType, error) {
	query := `
		UPDATE workflow_types
		SET is_active  = $2,
		    updated_at = NOW()
		WHERE workflow_id = $1
		RETURNING ` + typeColumns

	t, err := scanType(r.db.QueryRow(ctx, query, workflowID, active))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow type")
	}
	return t, nil
}

// AddStep inserts step at its StepOrder (zero appends) and renumbers the
// steps after it. The resulting list must satisfy the ordering rules.
func (r *TemplateRepository) AddStep(ctx context.Context, workflowID int64, step domain.WorkflowStep) (*domain.Template, error) {
	var out *domain.Template
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tmpl, err := lockTemplate(ctx, tx, workflowID)
		if err != nil {
			return err
		}

		step.ID = 0
		step.WorkflowID = workflowID
		steps, err := domain.InsertStep(tmpl.Steps, step)
		if err != nil {
			return err
		}

		for i := range steps {
			s := &steps[i]
			if s.ID == 0 {
				if err := insertStep(ctx, tx, s); err != nil {
					return err
				}
				continue
			}
			_, err := tx.Exec(ctx, `
				UPDATE workflow_steps
				SET step_order    = $2,
				    is_final_step = $3
				WHERE step_id = $1
			`, s.ID, s.StepOrder, s.IsFinalStep)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to renumber workflow step")
			}
		}

		if err := touchTemplate(ctx, tx, workflowID); err != nil {
			return err
		}
		tmpl.Steps = steps
		out = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReorderSteps replaces the complete step list of a template.
func (r *TemplateRepository) ReorderSteps(ctx context.Context, workflowID int64, steps []domain.WorkflowStep) (*domain.Template, error) {
	steps = domain.SortSteps(steps)
	if err := domain.ValidateSteps(steps); err != nil {
		return nil, err
	}

	var out *domain.Template
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tmpl, err := lockTemplate(ctx, tx, workflowID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM workflow_steps WHERE workflow_id = $1`, workflowID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear workflow steps")
		}
		for i := range steps {
			steps[i].ID = 0
			steps[i].WorkflowID = workflowID
			if err := insertStep(ctx, tx, &steps[i]); err != nil {
				return err
			}
		}

		if err := touchTemplate(ctx, tx, workflowID); err != nil {
			return err
		}
		tmpl.Steps = steps
		out = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func getTemplate(ctx context.Context, q querier, where string, arg any) (*domain.Template, error) {
	query := `SELECT ` + typeColumns + ` FROM workflow_types ` + where

	t, err := scanType(q.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %v not found", arg)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow type")
	}

	steps, err := listSteps(ctx, q, t.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Template{Type: *t, Steps: steps}, nil
}

// lockTemplate loads a template holding its type row FOR UPDATE so step
// edits on the same template serialize.
func lockTemplate(ctx context.Context, tx pgx.Tx, workflowID int64) (*domain.Template, error) {
	query := `SELECT ` + typeColumns + ` FROM workflow_types WHERE workflow_id = $1 FOR UPDATE`

	t, err := scanType(tx.QueryRow(ctx, query, workflowID))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock workflow type")
	}

	steps, err := listSteps(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	return &domain.Template{Type: *t, Steps: steps}, nil
}

func listSteps(ctx context.Context, q querier, workflowID int64) ([]domain.WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := q.Query(ctx, query, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow steps")
	}
	defer rows.Close()

	steps := []domain.WorkflowStep{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate workflow steps")
	}
	return steps, nil
}

func insertStep(ctx context.Context, tx pgx.Tx, s *domain.WorkflowStep) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO workflow_steps
		    (workflow_id, step_order, name_en, name_ar, approver_role_id, is_final_step)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING step_id
	`,
		s.WorkflowID,
		s.StepOrder,
		s.Name.En,
		s.Name.Ar,
		string(s.ApproverRoleID),
		s.IsFinalStep,
	).Scan(&s.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert workflow step")
	}
	return nil
}

func touchTemplate(ctx context.Context, tx pgx.Tx, workflowID int64) error {
	_, err := tx.Exec(ctx, `UPDATE workflow_types SET updated_at = NOW() WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to touch workflow type")
	}
	return nil
}

func scanType(sc rowScanner) (*domain.WorkflowType, error) {
	t := &domain.WorkflowType{}
	err := sc.Scan(
		&t.ID,
		&t.Code,
		&t.Name.En,
		&t.Name.Ar,
		&t.Description,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanStep(sc rowScanner) (*domain.WorkflowStep, error) {
	s := &domain.WorkflowStep{}
	var role string
	err := sc.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.StepOrder,
		&s.Name.En,
		&s.Name.Ar,
		&role,
		&s.IsFinalStep,
	)
	if err != nil {
		return nil, err
	}
	s.ApproverRoleID = domain.RoleID(role)
	return s, nil
}
