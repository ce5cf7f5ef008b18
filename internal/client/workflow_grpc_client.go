package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/identra/be-hr-workflows/internal/api/workflowsv1"
	"github.com/identra/be-hr-workflows/internal/domain"
	"github.com/identra/be-hr-workflows/internal/service"
)

// WorkflowGRPCClient is the client for peer services (leave, permissions,
// payroll) that open and track approval requests over gRPC. Each call
// forwards the caller identity and request id of ctx.
type WorkflowGRPCClient struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// NewWorkflowGRPCClient dials the workflow gRPC service. Extra dial options
// are appended after the defaults.
func NewWorkflowGRPCClient(addr string, opts ...grpc.DialOption) (*WorkflowGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &WorkflowGRPCClient{conn: conn, own: conn}, nil
}

// NewWorkflowGRPCClientFromConn wraps an existing connection. Close is a no-op.
func NewWorkflowGRPCClientFromConn(conn grpc.ClientConnInterface) *WorkflowGRPCClient {
	return &WorkflowGRPCClient{conn: conn}
}

// Close releases the underlying gRPC connection.
func (c *WorkflowGRPCClient) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

func (c *WorkflowGRPCClient) call(ctx context.Context, method string, in, out any) error {
	req, err := pb.Encode(in)
	if err != nil {
		return err
	}
	resp, err := pb.Invoke(ctx, c.conn, method, req)
	if err != nil {
		return err
	}
	return pb.Decode(resp, out)
}

// CreateTemplate creates a workflow template with its steps.
func (c *WorkflowGRPCClient) CreateTemplate(ctx context.Context, in service.CreateTemplateInput) (*domain.Template, error) {
	var out domain.Template
	if err := c.call(ctx, pb.MethodCreateTemplate, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTemplate returns a template by id.
func (c *WorkflowGRPCClient) GetTemplate(ctx context.Context, workflowID int64) (*domain.Template, error) {
	var out domain.Template
	if err := c.call(ctx, pb.MethodGetTemplate, map[string]any{"workflow_id": workflowID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateWorkflow starts an approval request. A zero requestor id lets the
// server use the forwarded caller identity.
func (c *WorkflowGRPCClient) InitiateWorkflow(ctx context.Context, workflowID int64, transactionID string, requestorID int64) (*domain.RequestView, error) {
	var out domain.RequestView
	in := service.InitiateInput{WorkflowID: workflowID, TransactionID: transactionID, RequestorID: requestorID}
	if err := c.call(ctx, pb.MethodInitiateWorkflow, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessDecision approves or rejects an instance as the forwarded caller.
func (c *WorkflowGRPCClient) ProcessDecision(ctx context.Context, instanceID int64, action domain.Action, remarks string) (*domain.RequestView, error) {
	var out domain.RequestView
	in := map[string]any{"instance_id": instanceID, "action": string(action), "remarks": remarks}
	if err := c.call(ctx, pb.MethodProcessDecision, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRequest withdraws a pending request as the forwarded caller.
func (c *WorkflowGRPCClient) CancelRequest(ctx context.Context, requestID int64, remarks string) (*domain.RequestView, error) {
	var out domain.RequestView
	if err := c.call(ctx, pb.MethodCancelRequest, map[string]any{"request_id": requestID, "remarks": remarks}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequestStatus returns a request with its instances.
func (c *WorkflowGRPCClient) GetRequestStatus(ctx context.Context, requestID int64) (*domain.RequestView, error) {
	var out domain.RequestView
	if err := c.call(ctx, pb.MethodGetRequestStatus, map[string]any{"request_id": requestID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPendingApprovals returns the forwarded caller's inbox.
func (c *WorkflowGRPCClient) GetPendingApprovals(ctx context.Context) ([]domain.PendingApproval, error) {
	var out struct {
		Approvals []domain.PendingApproval `json:"approvals"`
	}
	if err := c.call(ctx, pb.MethodListPendingApprovals, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Approvals, nil
}
