// Package resolver maps an approver role onto a concrete employee at the
// moment a request is initiated.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

// Resolver returns the employee who must act on a step requiring role for a
// request raised by requestorID.
type Resolver interface {
	Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error)

func (f Func) Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error) {
	return f(ctx, role, requestorID)
}

// Employee is the directory view of one person.
type Employee struct {
	ID             int64           `json:"employee_id" yaml:"employee_id"`
	ManagerID      int64           `json:"manager_id,omitempty" yaml:"manager_id"`
	OrganizationID string          `json:"organization_id,omitempty" yaml:"organization_id"`
	Roles          []domain.RoleID `json:"roles,omitempty" yaml:"roles"`
	Active         bool            `json:"active" yaml:"active"`
}

// HasRole reports whether e holds role, ignoring case.
func (e *Employee) HasRole(role domain.RoleID) bool {
	for _, r := range e.Roles {
		if strings.EqualFold(string(r), string(role)) {
			return true
		}
	}
	return false
}

// Directory is the organizational lookup the policies consult. GetEmployee
// returns errors.ErrCodeNotFound for unknown ids and ErrDirectoryUnavailable
// when the backend cannot answer.
type Directory interface {
	GetEmployee(ctx context.Context, id int64) (*Employee, error)
	ListRoleHolders(ctx context.Context, role domain.RoleID, organizationID string) ([]Employee, error)
}

// Policy names accepted in configuration.
const (
	PolicyReportingLine = "reporting_line"
	PolicyRolePool      = "role_pool"
	PolicyFixed         = "fixed"
)

// DefaultManagerRole resolves to the requestor's direct manager under the
// reporting_line policy.
const DefaultManagerRole domain.RoleID = "MANAGER"

const maxChainDepth = 32

// ReportingLine walks the requestor's management chain nearest first and
// returns the first ancestor that holds the role.
type ReportingLine struct {
	dir         Directory
	managerRole domain.RoleID
}

// NewReportingLine creates a ReportingLine policy. An empty managerRole
// defaults to DefaultManagerRole.
func NewReportingLine(dir Directory, managerRole domain.RoleID) *ReportingLine {
	if managerRole == "" {
		managerRole = DefaultManagerRole
	}
	return &ReportingLine{dir: dir, managerRole: managerRole}
}

func (p *ReportingLine) Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error) {
	requestor, err := p.dir.GetEmployee(ctx, requestorID)
	if err != nil {
		return 0, lookupErr(err, role, requestorID)
	}

	seen := map[int64]bool{requestorID: true}
	next := requestor.ManagerID
	for depth := 0; next != 0 && depth < maxChainDepth; depth++ {
		if seen[next] {
			break
		}
		seen[next] = true

		mgr, err := p.dir.GetEmployee(ctx, next)
		if err != nil {
			return 0, lookupErr(err, role, requestorID)
		}
		direct := depth == 0 && strings.EqualFold(string(role), string(p.managerRole))
		if mgr.Active && (direct || mgr.HasRole(role)) {
			return mgr.ID, nil
		}
		next = mgr.ManagerID
	}
	return 0, domain.ErrNoApproverFound.Withf("no one in the reporting line of employee %d holds role %s", requestorID, role)
}

// RolePool picks among every active holder of the role in the requestor's
// organization. The lowest employee id wins and the requestor is never
// chosen.
type RolePool struct {
	dir Directory
}

// NewRolePool creates a RolePool policy.
func NewRolePool(dir Directory) *RolePool {
	return &RolePool{dir: dir}
}

func (p *RolePool) Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error) {
	requestor, err := p.dir.GetEmployee(ctx, requestorID)
	if err != nil {
		return 0, lookupErr(err, role, requestorID)
	}

	holders, err := p.dir.ListRoleHolders(ctx, role, requestor.OrganizationID)
	if err != nil {
		return 0, lookupErr(err, role, requestorID)
	}

	ids := make([]int64, 0, len(holders))
	for _, h := range holders {
		if h.ID == requestorID || !h.Active {
			continue
		}
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return 0, domain.ErrNoApproverFound.Withf("no employee other than %d holds role %s", requestorID, role)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], nil
}

// Fixed maps roles to configured employees.
type Fixed struct {
	approvers map[string]int64
}

// NewFixed creates a Fixed policy. Role keys are matched case-insensitively.
func NewFixed(approvers map[string]int64) *Fixed {
	m := make(map[string]int64, len(approvers))
	for role, id := range approvers {
		m[strings.ToLower(role)] = id
	}
	return &Fixed{approvers: m}
}

func (p *Fixed) Resolve(_ context.Context, role domain.RoleID, _ int64) (int64, error) {
	id, ok := p.approvers[strings.ToLower(string(role))]
	if !ok || id == 0 {
		return 0, domain.ErrNoApproverFound.Withf("no fixed approver configured for role %s", role)
	}
	return id, nil
}

// Router dispatches each role to its configured policy.
type Router struct {
	fallback Resolver
	routes   map[string]Resolver
}

// NewRouter creates a Router that uses fallback for roles without a route.
func NewRouter(fallback Resolver, routes map[string]Resolver) *Router {
	m := make(map[string]Resolver, len(routes))
	for role, r := range routes {
		m[strings.ToLower(role)] = r
	}
	return &Router{fallback: fallback, routes: m}
}

func (r *Router) Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error) {
	if res, ok := r.routes[strings.ToLower(string(role))]; ok {
		return res.Resolve(ctx, role, requestorID)
	}
	return r.fallback.Resolve(ctx, role, requestorID)
}

// Config selects policies by name.
type Config struct {
	DefaultPolicy string
	Policies      map[string]string
	Fixed         map[string]int64
	ManagerRole   domain.RoleID
}

// New builds a Router over dir from cfg.
func New(cfg Config, dir Directory) (*Router, error) {
	policies := map[string]Resolver{
		PolicyReportingLine: NewReportingLine(dir, cfg.ManagerRole),
		PolicyRolePool:      NewRolePool(dir),
		PolicyFixed:         NewFixed(cfg.Fixed),
	}

	name := cfg.DefaultPolicy
	if name == "" {
		name = PolicyReportingLine
	}
	fallback, ok := policies[name]
	if !ok {
		return nil, errors.InvalidInput("resolver.default_policy", fmt.Sprintf("unknown policy %q", name))
	}

	routes := make(map[string]Resolver, len(cfg.Policies))
	for role, policy := range cfg.Policies {
		res, ok := policies[policy]
		if !ok {
			return nil, errors.InvalidInput("resolver.policies."+role, fmt.Sprintf("unknown policy %q", policy))
		}
		routes[role] = res
	}
	return NewRouter(fallback, routes), nil
}

// lookupErr turns a directory failure into what the orchestrator reports:
// an unknown employee means nobody can approve, anything else is the
// directory being unavailable.
func lookupErr(err error, role domain.RoleID, requestorID int64) error {
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return domain.ErrNoApproverFound.Withf("resolving role %s for employee %d: %s", role, requestorID, err)
	case domain.CodeDirectoryUnavailable, domain.CodeNoApproverFound:
		return err
	}
	return &errors.AppError{
		Code:     domain.CodeDirectoryUnavailable,
		Category: errors.CategoryDependency,
		Message:  fmt.Sprintf("resolving role %s for employee %d", role, requestorID),
		Err:      err,
	}
}
