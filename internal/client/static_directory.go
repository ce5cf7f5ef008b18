package client

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
	"github.com/identra/be-hr-workflows/internal/resolver"
)

// StaticDirectory serves the org chart from a YAML seed file. It backs local
// development and the memory driver where no directory service runs.
//
//	employees:
//	  - employee_id: 12
//	    manager_id: 40
//	    organization_id: HQ
//	    roles: [EMPLOYEE]
type StaticDirectory struct {
	employees map[int64]resolver.Employee
}

type staticFile struct {
	Employees []struct {
		ID             int64           `yaml:"employee_id"`
		ManagerID      int64           `yaml:"manager_id"`
		OrganizationID string          `yaml:"organization_id"`
		Roles          []domain.RoleID `yaml:"roles"`
		Active         *bool           `yaml:"active"`
	} `yaml:"employees"`
}

// LoadStaticDirectory reads a YAML seed file from disk.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}
	return ParseStaticDirectory(data)
}

// ParseStaticDirectory builds a directory from YAML. Employees are active
// unless the file says otherwise.
func ParseStaticDirectory(data []byte) (*StaticDirectory, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}

	d := &StaticDirectory{employees: make(map[int64]resolver.Employee, len(f.Employees))}
	for _, e := range f.Employees {
		if e.ID <= 0 {
			return nil, fmt.Errorf("directory file: employee_id must be positive, got %d", e.ID)
		}
		if _, dup := d.employees[e.ID]; dup {
			return nil, fmt.Errorf("directory file: duplicate employee_id %d", e.ID)
		}
		active := e.Active == nil || *e.Active
		d.employees[e.ID] = resolver.Employee{
			ID:             e.ID,
			ManagerID:      e.ManagerID,
			OrganizationID: e.OrganizationID,
			Roles:          e.Roles,
			Active:         active,
		}
	}
	return d, nil
}

func (d *StaticDirectory) GetEmployee(_ context.Context, id int64) (*resolver.Employee, error) {
	e, ok := d.employees[id]
	if !ok {
		return nil, errors.NotFound("employee", id)
	}
	e.Roles = append([]domain.RoleID(nil), e.Roles...)
	return &e, nil
}

func (d *StaticDirectory) ListRoleHolders(_ context.Context, role domain.RoleID, organizationID string) ([]resolver.Employee, error) {
	var out []resolver.Employee
	for _, e := range d.employees {
		if organizationID != "" && e.OrganizationID != organizationID {
			continue
		}
		if e.HasRole(role) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
