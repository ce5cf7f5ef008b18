package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/identra/be-hr-workflows/internal/common/database"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

// RequestRepository persists workflow requests with their step instances.
// A request and its instances are always written together, in one
// transaction, and every status change is a compare-and-swap on the status
// the mutation observed.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	request_id, workflow_id, transaction_id, requestor_id, request_date,
	current_step_order, current_status, action_remarks, completed_at, updated_at
`

const instanceColumns = `
	instance_id, request_id, step_order, step_name_en, step_name_ar,
	approver_role_id, approver_id, status, decided_date, remarks, is_final_step
`

// CreateAggregate inserts a new request, its instances and the initiated
// audit entry. A second PENDING request for the same (workflow_id,
// transaction_id) fails with Conflict.
func (r *RequestRepository) CreateAggregate(ctx context.Context, agg *domain.Aggregate) (*domain.Aggregate, error) {
	out := agg.Clone()

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		req := &out.Request
		err := tx.QueryRow(ctx, `
			INSERT INTO workflow_requests
			    (workflow_id, transaction_id, requestor_id, request_date,
			     current_step_order, current_status, action_remarks, updated_at)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7, $8)
			RETURNING request_id
		`,
			req.WorkflowID,
			req.TransactionID,
			req.RequestorID,
			req.RequestDate,
			req.CurrentStepOrder,
			string(req.CurrentStatus),
			req.ActionRemarks,
			req.UpdatedAt,
		).Scan(&req.ID)
		if err != nil {
			switch {
			case database.IsUniqueViolation(err, "uq_workflow_requests_active"):
				return domain.ErrConflict.Withf("transaction %s already has a pending request on workflow %d",
					req.TransactionID, req.WorkflowID)
			case database.IsForeignKeyViolation(err):
				return domain.ErrTemplateNotFound.Withf("workflow %d not found", req.WorkflowID)
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow request")
		}

		for i := range out.Instances {
			inst := &out.Instances[i]
			inst.RequestID = req.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO approval_step_instances
				    (request_id, step_order, step_name_en, step_name_ar,
				     approver_role_id, approver_id, status, is_final_step)
				VALUES ($1, $2, $3, $4,
				        $5, $6, $7, $8)
				RETURNING instance_id
			`,
				inst.RequestID,
				inst.StepOrder,
				inst.StepName.En,
				inst.StepName.Ar,
				string(inst.ApproverRoleID),
				inst.ApproverID,
				string(inst.Status),
				inst.IsFinalStep,
			).Scan(&inst.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step instance")
			}
		}

		audit := out.InitiatedAudit()
		return appendAudit(ctx, tx, &audit)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAggregate returns a request with its instances ordered by step_order.
func (r *RequestRepository) GetAggregate(ctx context.Context, requestID int64) (*domain.Aggregate, error) {
	return loadAggregate(ctx, r.db, requestID, false)
}

// ApplyDecision locks the aggregate owning instanceID, runs fn against it
// and persists the resulting transition. Nothing is written when fn fails.
func (r *RequestRepository) ApplyDecision(ctx context.Context, instanceID int64, fn domain.Mutation) (*domain.Transition, error) {
	var out *domain.Transition
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var requestID int64
		err := tx.QueryRow(ctx, `SELECT request_id FROM approval_step_instances WHERE instance_id = $1`, instanceID).
			Scan(&requestID)
		if err == pgx.ErrNoRows {
			return domain.ErrInstanceNotFound.Withf("instance %d not found", instanceID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to look up approval step instance")
		}

		out, err = mutate(ctx, tx, requestID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyToRequest is ApplyDecision for request-level mutations such as cancel.
func (r *RequestRepository) ApplyToRequest(ctx context.Context, requestID int64, fn domain.Mutation) (*domain.Transition, error) {
	var out *domain.Transition
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = mutate(ctx, tx, requestID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPendingForApprover returns the instances awaiting action by approverID
// on requests that are still pending, oldest request first.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, approverID int64) ([]domain.PendingApproval, error) {
	query := `
		SELECT r.request_id, r.workflow_id, r.transaction_id, r.requestor_id, r.request_date,
		       r.current_step_order, r.current_status, r.action_remarks, r.completed_at, r.updated_at,
		       i.instance_id, i.request_id, i.step_order, i.step_name_en, i.step_name_ar,
		       i.approver_role_id, i.approver_id, i.status, i.decided_date, i.remarks, i.is_final_step
		FROM approval_step_instances i
		JOIN workflow_requests r ON r.request_id = i.request_id
		WHERE i.approver_id = $1
		  AND i.status = 'AWAITING_ACTION'
		  AND r.current_status = 'PENDING'
		ORDER BY r.request_date ASC, r.request_id ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	pending := []domain.PendingApproval{}
	for rows.Next() {
		var (
			p   domain.PendingApproval
			req requestRow
			ins instanceRow
		)
		if err := rows.Scan(append(req.dest(), ins.dest()...)...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending approval")
		}
		p.Request = req.toDomain()
		p.Instance = ins.toDomain()
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate pending approvals")
	}
	return pending, nil
}

// ListHistory returns the audit trail of a request oldest-first.
func (r *RequestRepository) ListHistory(ctx context.Context, requestID int64) ([]domain.AuditEntry, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_requests WHERE request_id = $1)`, requestID).
		Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to look up workflow request")
	}
	if !exists {
		return nil, domain.ErrRequestNotFound.Withf("request %d not found", requestID)
	}
	return listAudit(ctx, r.db, requestID)
}

// ── transition helpers ────────────────────────────────────────────────────────

func mutate(ctx context.Context, tx pgx.Tx, requestID int64, fn domain.Mutation) (*domain.Transition, error) {
	agg, err := loadAggregate(ctx, tx, requestID, true)
	if err != nil {
		return nil, err
	}

	t, err := fn(agg)
	if err != nil {
		return nil, err
	}
	if err := writeTransition(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// writeTransition persists t. Each row update is guarded by the status the
// mutation started from; a miss means another writer got there first.
func writeTransition(ctx context.Context, tx pgx.Tx, t *domain.Transition) error {
	for _, c := range t.Instances {
		tag, err := tx.Exec(ctx, `
			UPDATE approval_step_instances
			SET status       = $2,
			    decided_date = $3,
			    remarks      = $4
			WHERE instance_id = $1
			  AND status = $5
		`,
			c.Instance.ID,
			string(c.Instance.Status),
			c.Instance.DecidedDate,
			c.Instance.Remarks,
			string(c.From),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval step instance")
		}
		if tag.RowsAffected() != 1 {
			return domain.ErrNotActionable.Withf("instance %d is no longer %s", c.Instance.ID, c.From)
		}
	}

	req := t.Request
	tag, err := tx.Exec(ctx, `
		UPDATE workflow_requests
		SET current_step_order = $2,
		    current_status     = $3,
		    action_remarks     = $4,
		    completed_at       = $5,
		    updated_at         = $6
		WHERE request_id = $1
		  AND current_status = $7
	`,
		req.ID,
		req.CurrentStepOrder,
		string(req.CurrentStatus),
		req.ActionRemarks,
		req.CompletedAt,
		req.UpdatedAt,
		string(t.RequestFrom),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow request")
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrRequestAlreadyClosed.Withf("request %d is no longer %s", req.ID, t.RequestFrom)
	}

	audit := t.Audit
	if err := appendAudit(ctx, tx, &audit); err != nil {
		return err
	}
	t.Audit = audit
	return nil
}

func loadAggregate(ctx context.Context, q querier, requestID int64, forUpdate bool) (*domain.Aggregate, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var req requestRow
	err := q.QueryRow(ctx, `SELECT `+requestColumns+` FROM workflow_requests WHERE request_id = $1`+lock, requestID).
		Scan(req.dest()...)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrRequestNotFound.Withf("request %d not found", requestID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow request")
	}

	rows, err := q.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM approval_step_instances
		WHERE request_id = $1
		ORDER BY step_order ASC`+lock, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval step instances")
	}
	defer rows.Close()

	agg := &domain.Aggregate{Request: req.toDomain(), Instances: []domain.ApprovalStepInstance{}}
	for rows.Next() {
		var ins instanceRow
		if err := rows.Scan(ins.dest()...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step instance")
		}
		agg.Instances = append(agg.Instances, ins.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate approval step instances")
	}
	return agg, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type requestRow struct {
	domain.WorkflowRequest
	status string
}

func (r *requestRow) dest() []any {
	return []any{
		&r.ID,
		&r.WorkflowID,
		&r.TransactionID,
		&r.RequestorID,
		&r.RequestDate,
		&r.CurrentStepOrder,
		&r.status,
		&r.ActionRemarks,
		&r.CompletedAt,
		&r.UpdatedAt,
	}
}

func (r *requestRow) toDomain() domain.WorkflowRequest {
	out := r.WorkflowRequest
	out.CurrentStatus = domain.RequestStatus(r.status)
	out.RequestDate = out.RequestDate.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	out.CompletedAt = utcPtr(out.CompletedAt)
	return out
}

type instanceRow struct {
	domain.ApprovalStepInstance
	role   string
	status string
}

func (r *instanceRow) dest() []any {
	return []any{
		&r.ID,
		&r.RequestID,
		&r.StepOrder,
		&r.StepName.En,
		&r.StepName.Ar,
		&r.role,
		&r.ApproverID,
		&r.status,
		&r.DecidedDate,
		&r.Remarks,
		&r.IsFinalStep,
	}
}

func (r *instanceRow) toDomain() domain.ApprovalStepInstance {
	out := r.ApprovalStepInstance
	out.ApproverRoleID = domain.RoleID(r.role)
	out.Status = domain.InstanceStatus(r.status)
	out.DecidedDate = utcPtr(out.DecidedDate)
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
