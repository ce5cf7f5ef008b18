// Package memory implements the template and request stores in process.
// All methods work with copies so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/identra/be-hr-workflows/internal/domain"
)

// TemplateStore is an in-memory, thread-safe template store.
type TemplateStore struct {
	mux    sync.RWMutex
	nextID int64
	stepID int64
	types  map[int64]domain.WorkflowType
	steps  map[int64][]domain.WorkflowStep
	codes  map[string]int64
}

// NewTemplateStore creates an empty TemplateStore.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		types: map[int64]domain.WorkflowType{},
		steps: map[int64][]domain.WorkflowStep{},
		codes: map[string]int64{},
	}
}

// CreateTemplate stores a workflow type together with its initial steps.
func (s *TemplateStore) CreateTemplate(_ context.Context, t domain.WorkflowType, steps []domain.WorkflowStep) (*domain.Template, error) {
	if err := domain.ValidateType(t); err != nil {
		return nil, err
	}
	if len(steps) > 0 {
		steps = domain.SortSteps(steps)
		if err := domain.ValidateSteps(steps); err != nil {
			return nil, err
		}
	}
	t.Code = strings.TrimSpace(t.Code)

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.codes[t.Code]; ok {
		return nil, domain.ErrDuplicateCode.Withf("workflow code %q already exists", t.Code)
	}
	s.nextID++
	now := time.Now().UTC()
	t.ID = s.nextID
	t.CreatedAt = now
	t.UpdatedAt = now
	s.types[t.ID] = t
	s.codes[t.Code] = t.ID

	saved := make([]domain.WorkflowStep, len(steps))
	for i, st := range steps {
		s.stepID++
		st.ID = s.stepID
		st.WorkflowID = t.ID
		saved[i] = st
	}
	s.steps[t.ID] = saved
	return s.template(t.ID)
}

func (s *TemplateStore) GetTemplate(ctx context.Context, workflowID int64) (*domain.Template, error) {
	tmpl, err := s.GetTemplateForHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Type.IsActive {
		return nil, domain.ErrTemplateInactive.Withf("workflow %d is inactive", workflowID)
	}
	return tmpl, nil
}

func (s *TemplateStore) GetTemplateForHistory(_ context.Context, workflowID int64) (*domain.Template, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.template(workflowID)
}

func (s *TemplateStore) GetTemplateByCode(_ context.Context, code string) (*domain.Template, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	id, ok := s.codes[strings.TrimSpace(code)]
	if !ok {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %q not found", code)
	}
	return s.template(id)
}

func (s *TemplateStore) ListTemplates(_ context.Context, activeOnly bool) ([]domain.WorkflowType, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]domain.WorkflowType, 0, len(s.types))
	for _, t := range s.types {
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TemplateStore) SetTemplateActive(_ context.Context, workflowID int64, active bool) (*domain.WorkflowType, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	t, ok := s.types[workflowID]
	if !ok {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}
	t.IsActive = active
	t.UpdatedAt = time.Now().UTC()
	s.types[workflowID] = t
	return &t, nil
}

func (s *TemplateStore) AddStep(_ context.Context, workflowID int64, step domain.WorkflowStep) (*domain.Template, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.types[workflowID]; !ok {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}

	step.ID = 0
	step.WorkflowID = workflowID
	steps, err := domain.InsertStep(s.steps[workflowID], step)
	if err != nil {
		return nil, err
	}
	for i := range steps {
		if steps[i].ID == 0 {
			s.stepID++
			steps[i].ID = s.stepID
		}
	}
	s.commitSteps(workflowID, steps)
	return s.template(workflowID)
}

func (s *TemplateStore) ReorderSteps(_ context.Context, workflowID int64, steps []domain.WorkflowStep) (*domain.Template, error) {
	steps = domain.SortSteps(steps)
	if err := domain.ValidateSteps(steps); err != nil {
		return nil, err
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.types[workflowID]; !ok {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}
	for i := range steps {
		s.stepID++
		steps[i].ID = s.stepID
		steps[i].WorkflowID = workflowID
	}
	s.commitSteps(workflowID, steps)
	return s.template(workflowID)
}

func (s *TemplateStore) commitSteps(workflowID int64, steps []domain.WorkflowStep) {
	s.steps[workflowID] = steps
	t := s.types[workflowID]
	t.UpdatedAt = time.Now().UTC()
	s.types[workflowID] = t
}

// template must be called with the lock held.
func (s *TemplateStore) template(workflowID int64) (*domain.Template, error) {
	t, ok := s.types[workflowID]
	if !ok {
		return nil, domain.ErrTemplateNotFound.Withf("workflow %d not found", workflowID)
	}
	steps := make([]domain.WorkflowStep, len(s.steps[workflowID]))
	copy(steps, s.steps[workflowID])
	return &domain.Template{Type: t, Steps: steps}, nil
}
