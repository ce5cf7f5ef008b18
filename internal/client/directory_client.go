package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/common/middleware"
	"github.com/identra/be-hr-workflows/internal/domain"
	"github.com/identra/be-hr-workflows/internal/resolver"
)

// DirectoryClient is a client for the organization directory service.
type DirectoryClient struct {
	baseURL string
	http    *http.Client
}

// NewDirectoryClient creates a new directory service client.
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type employeeListResponse struct {
	Employees []resolver.Employee `json:"employees"`
}

// GetEmployee returns one employee with their manager and roles.
func (c *DirectoryClient) GetEmployee(ctx context.Context, id int64) (*resolver.Employee, error) {
	path := fmt.Sprintf("/api/v1/employees/%d", id)

	var resp resolver.Employee
	if err := c.get(ctx, path, &resp); err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return nil, errors.NotFound("employee", id)
		}
		return nil, err
	}
	return &resp, nil
}

// ListRoleHolders returns every employee holding role in an organization.
func (c *DirectoryClient) ListRoleHolders(ctx context.Context, role domain.RoleID, organizationID string) ([]resolver.Employee, error) {
	q := url.Values{}
	q.Set("role", string(role))
	if organizationID != "" {
		q.Set("organization_id", organizationID)
	}

	var resp employeeListResponse
	if err := c.get(ctx, "/api/v1/employees?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Employees, nil
}

func (c *DirectoryClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build directory request")
	}
	req.Header.Set("Accept", "application/json")
	auth.SetOutgoingHeaders(ctx, req.Header)
	if id := middleware.RequestIDFrom(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err, "directory request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "directory: "+path+" not found")
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"directory returned an error")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(err, "failed to decode directory response")
	}
	return nil
}

func unavailable(err error, msg string) error {
	return &errors.AppError{
		Code:     domain.CodeDirectoryUnavailable,
		Category: errors.CategoryDependency,
		Message:  msg,
		Err:      err,
	}
}
