package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

type activeKey struct {
	workflowID    int64
	transactionID string
}

// RequestStore is an in-memory request/instance store. One mutex serializes
// every mutation, which gives the same atomicity as the row-locking
// Postgres store. Mutations run on a copy that replaces the stored aggregate
// only when the whole transition succeeds.
type RequestStore struct {
	mux        sync.RWMutex
	requestSeq int64
	instSeq    int64
	auditSeq   int64
	requests   map[int64]*domain.Aggregate
	owner      map[int64]int64
	active     map[activeKey]int64
	audit      map[int64][]domain.AuditEntry
}

// NewRequestStore creates an empty RequestStore.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: map[int64]*domain.Aggregate{},
		owner:    map[int64]int64{},
		active:   map[activeKey]int64{},
		audit:    map[int64][]domain.AuditEntry{},
	}
}

func (s *RequestStore) CreateAggregate(_ context.Context, agg *domain.Aggregate) (*domain.Aggregate, error) {
	out := agg.Clone()

	s.mux.Lock()
	defer s.mux.Unlock()

	key := activeKey{out.Request.WorkflowID, out.Request.TransactionID}
	if _, ok := s.active[key]; ok {
		return nil, domain.ErrConflict.Withf("transaction %s already has a pending request on workflow %d",
			key.transactionID, key.workflowID)
	}

	s.requestSeq++
	out.Request.ID = s.requestSeq
	for i := range out.Instances {
		s.instSeq++
		out.Instances[i].ID = s.instSeq
		out.Instances[i].RequestID = out.Request.ID
		s.owner[s.instSeq] = out.Request.ID
	}

	s.requests[out.Request.ID] = out
	if out.Request.CurrentStatus == domain.RequestPending {
		s.active[key] = out.Request.ID
	}
	s.appendAudit(out.InitiatedAudit())
	return out.Clone(), nil
}

func (s *RequestStore) GetAggregate(_ context.Context, requestID int64) (*domain.Aggregate, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	agg, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound.Withf("request %d not found", requestID)
	}
	return agg.Clone(), nil
}

func (s *RequestStore) ApplyDecision(_ context.Context, instanceID int64, fn domain.Mutation) (*domain.Transition, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	requestID, ok := s.owner[instanceID]
	if !ok {
		return nil, domain.ErrInstanceNotFound.Withf("instance %d not found", instanceID)
	}
	return s.mutate(requestID, fn)
}

func (s *RequestStore) ApplyToRequest(_ context.Context, requestID int64, fn domain.Mutation) (*domain.Transition, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.mutate(requestID, fn)
}

func (s *RequestStore) ListPendingForApprover(_ context.Context, approverID int64) ([]domain.PendingApproval, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := []domain.PendingApproval{}
	for _, agg := range s.requests {
		if agg.Request.CurrentStatus != domain.RequestPending {
			continue
		}
		cur := agg.Current()
		if cur == nil || cur.ApproverID != approverID {
			continue
		}
		c := agg.Clone()
		out = append(out, domain.PendingApproval{Request: c.Request, Instance: *c.Current()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Request.RequestDate.Equal(out[j].Request.RequestDate) {
			return out[i].Request.RequestDate.Before(out[j].Request.RequestDate)
		}
		return out[i].Request.ID < out[j].Request.ID
	})
	return out, nil
}

func (s *RequestStore) ListHistory(_ context.Context, requestID int64) ([]domain.AuditEntry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if _, ok := s.requests[requestID]; !ok {
		return nil, domain.ErrRequestNotFound.Withf("request %d not found", requestID)
	}
	out := make([]domain.AuditEntry, len(s.audit[requestID]))
	copy(out, s.audit[requestID])
	return out, nil
}

// mutate must be called with the write lock held.
func (s *RequestStore) mutate(requestID int64, fn domain.Mutation) (*domain.Transition, error) {
	stored, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound.Withf("request %d not found", requestID)
	}

	work := stored.Clone()
	t, err := fn(work)
	if err != nil {
		return nil, err
	}

	for _, c := range t.Instances {
		prev := stored.Instance(c.Instance.ID)
		if prev == nil || prev.Status != c.From {
			return nil, domain.ErrNotActionable.Withf("instance %d is no longer %s", c.Instance.ID, c.From)
		}
	}
	if stored.Request.CurrentStatus != t.RequestFrom {
		return nil, domain.ErrRequestAlreadyClosed.Withf("request %d is no longer %s", requestID, t.RequestFrom)
	}
	if err := work.CheckInvariants(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, fmt.Sprintf("transition on request %d broke invariants", requestID))
	}

	s.requests[requestID] = work
	if work.Request.CurrentStatus.IsTerminal() {
		delete(s.active, activeKey{work.Request.WorkflowID, work.Request.TransactionID})
	}
	t.Audit = s.appendAudit(t.Audit)
	return t, nil
}

func (s *RequestStore) appendAudit(entry domain.AuditEntry) domain.AuditEntry {
	s.auditSeq++
	entry.ID = s.auditSeq
	s.audit[entry.RequestID] = append(s.audit[entry.RequestID], entry)
	return entry
}
