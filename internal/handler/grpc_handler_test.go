package handler

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pb "github.com/identra/be-hr-workflows/internal/api/workflowsv1"
	"github.com/identra/be-hr-workflows/internal/client"
	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/logger"
	"github.com/identra/be-hr-workflows/internal/domain"
)

func newGRPCClient(t *testing.T) *client.WorkflowGRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	workflows, templates := newServices()
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor))
	pb.RegisterWorkflowServiceServer(srv, NewGRPCHandler(workflows, templates, logger.Nop().Logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.NewWorkflowGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func as(employeeID int64) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-employee-id", strconv.FormatInt(employeeID, 10))
}

func TestGRPCHandler_Flow(t *testing.T) {
	c := newGRPCClient(t)

	tmpl, err := c.CreateTemplate(as(1), leaveTemplate)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 3)

	got, err := c.GetTemplate(as(1), tmpl.Type.ID)
	require.NoError(t, err)
	assert.Equal(t, "LEAVE", got.Type.Code)

	view, err := c.InitiateWorkflow(as(requestor), tmpl.Type.ID, "LV-42", 0)
	require.NoError(t, err)
	assert.Equal(t, requestor, view.Request.RequestorID)
	require.NotNil(t, view.Current)
	assert.Equal(t, manager, view.Current.ApproverID)

	pending, err := c.GetPendingApprovals(as(manager))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, view.Current.ID, pending[0].Instance.ID)

	for _, approver := range []int64{manager, hrOfficer, director} {
		view, err = c.ProcessDecision(as(approver), view.Current.ID, domain.ActionApprove, "")
		require.NoError(t, err)
	}
	assert.Equal(t, domain.RequestApproved, view.Request.CurrentStatus)
	assert.NotNil(t, view.Request.CompletedAt)

	_, err = c.ProcessDecision(as(director), view.Instances[2].ID, domain.ActionApprove, "")
	assertStatus(t, err, codes.FailedPrecondition, string(domain.CodeNotActionable))

	final, err := c.GetRequestStatus(as(requestor), view.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, final.Request.CurrentStatus)
	assert.Len(t, final.Instances, 3)

	_, err = c.CancelRequest(as(requestor), view.Request.ID, "too late")
	assertStatus(t, err, codes.FailedPrecondition, string(domain.CodeRequestAlreadyClosed))
}

func TestGRPCHandler_Errors(t *testing.T) {
	c := newGRPCClient(t)

	_, err := c.GetTemplate(as(1), 404)
	assertStatus(t, err, codes.NotFound, string(domain.CodeTemplateNotFound))

	tmpl, err := c.CreateTemplate(as(1), leaveTemplate)
	require.NoError(t, err)

	_, err = c.CreateTemplate(as(1), leaveTemplate)
	assertStatus(t, err, codes.AlreadyExists, string(domain.CodeDuplicateCode))

	view, err := c.InitiateWorkflow(as(requestor), tmpl.Type.ID, "LV-43", 0)
	require.NoError(t, err)

	_, err = c.InitiateWorkflow(as(requestor), tmpl.Type.ID, "LV-43", 0)
	assertStatus(t, err, codes.AlreadyExists, "CONFLICT")

	_, err = c.InitiateWorkflow(as(requestor), tmpl.Type.ID, "LV-44", manager)
	assertStatus(t, err, codes.PermissionDenied, "FORBIDDEN")

	peer := metadata.AppendToOutgoingContext(as(900), "x-employee-role", auth.RoleService)
	onBehalf, err := c.InitiateWorkflow(peer, tmpl.Type.ID, "LV-44", 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), onBehalf.Request.RequestorID)

	_, err = c.ProcessDecision(as(director), view.Current.ID, domain.ActionApprove, "")
	assertStatus(t, err, codes.PermissionDenied, string(domain.CodeNotAuthorized))

	_, err = c.ProcessDecision(context.Background(), view.Current.ID, domain.ActionApprove, "")
	assertStatus(t, err, codes.Unauthenticated, "UNAUTHENTICATED")

	_, err = c.ProcessDecision(as(manager), view.Current.ID, "ESCALATE", "")
	assertStatus(t, err, codes.InvalidArgument, string(domain.CodeInvalidAction))
}

func assertStatus(t *testing.T, err error, code codes.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, code, st.Code(), st.Message())

	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if ei, ok := d.(*errdetails.ErrorInfo); ok {
			info = ei
		}
	}
	require.NotNil(t, info, "status carries ErrorInfo")
	assert.Equal(t, reason, info.Reason)
}
