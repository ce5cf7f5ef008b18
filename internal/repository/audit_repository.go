package repository

import (
	"context"
	"encoding/json"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

// The audit trail is append-only. Entries are written inside the
// transaction that performs the transition they describe.

const insertAuditSQL = `
	INSERT INTO workflow_audit_log
	    (request_id, instance_id, action, performed_by, performed_at,
	     status_before, status_after, metadata)
	VALUES ($1, $2, $3, $4, $5,
	        $6, $7, $8)
	RETURNING id
`

const selectAuditSQL = `
	SELECT id, request_id, instance_id, action, performed_by, performed_at,
	       status_before, status_after, metadata
	FROM workflow_audit_log
	WHERE request_id = $1
	ORDER BY performed_at ASC, id ASC
`

// appendAudit inserts one entry using q, normally the caller's transaction.
func appendAudit(ctx context.Context, q querier, entry *domain.AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	var before *string
	if entry.StatusBefore != nil {
		s := string(*entry.StatusBefore)
		before = &s
	}

	err := q.QueryRow(ctx, insertAuditSQL,
		entry.RequestID,
		entry.InstanceID,
		entry.Action,
		entry.PerformedBy,
		entry.PerformedAt,
		before,
		string(entry.StatusAfter),
		metadataJSON,
	).Scan(&entry.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

func listAudit(ctx context.Context, q querier, requestID int64) ([]domain.AuditEntry, error) {
	rows, err := q.Query(ctx, selectAuditSQL, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate audit log")
	}
	return entries, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanAudit(sc rowScanner) (*domain.AuditEntry, error) {
	entry := &domain.AuditEntry{}
	var (
		before       *string
		after        string
		metadataJSON []byte
	)

	err := sc.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.InstanceID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&before,
		&after,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if before != nil {
		s := domain.RequestStatus(*before)
		entry.StatusBefore = &s
	}
	entry.StatusAfter = domain.RequestStatus(after)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return entry, nil
}
