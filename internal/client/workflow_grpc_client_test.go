package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/identra/be-hr-workflows/internal/api/workflowsv1"
	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/middleware"
	"github.com/identra/be-hr-workflows/internal/domain"
)

type recordingServer struct {
	pb.UnimplementedWorkflowServiceServer

	mu   sync.Mutex
	seen metadata.MD
}

func (s *recordingServer) GetRequestStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	s.mu.Lock()
	s.seen = md
	s.mu.Unlock()

	id := int64(req.GetFields()["request_id"].GetNumberValue())
	return pb.Encode(domain.RequestView{Request: domain.WorkflowRequest{ID: id, CurrentStatus: domain.RequestPending}})
}

func (s *recordingServer) last() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

func newRecordingClient(t *testing.T) (*WorkflowGRPCClient, *recordingServer) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	rs := &recordingServer{}
	srv := grpc.NewServer()
	pb.RegisterWorkflowServiceServer(srv, rs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewWorkflowGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rs
}

// withRequestID returns a context carrying the request id the HTTP
// middleware assigns.
func withRequestID(t *testing.T, id string) context.Context {
	t.Helper()
	var ctx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.HeaderRequestID, id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, ctx)
	return ctx
}

func TestWorkflowGRPCClient_ForwardsIdentity(t *testing.T) {
	c, rs := newRecordingClient(t)

	ctx := auth.WithUserContext(withRequestID(t, "req-77"), &auth.UserContext{EmployeeID: 12, Role: "EMPLOYEE"})
	view, err := c.GetRequestStatus(ctx, 41)
	require.NoError(t, err)
	assert.Equal(t, int64(41), view.Request.ID)
	assert.Equal(t, domain.RequestPending, view.Request.CurrentStatus)

	md := rs.last()
	assert.Equal(t, []string{"12"}, md.Get("x-employee-id"))
	assert.Equal(t, []string{"EMPLOYEE"}, md.Get("x-employee-role"))
	assert.Equal(t, []string{"req-77"}, md.Get("x-request-id"))
}

func TestWorkflowGRPCClient_ForwardsIncomingMetadata(t *testing.T) {
	c, rs := newRecordingClient(t)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-employee-id", "40",
		"x-request-id", "upstream-1",
	))
	_, err := c.GetRequestStatus(ctx, 1)
	require.NoError(t, err)

	md := rs.last()
	assert.Equal(t, []string{"40"}, md.Get("x-employee-id"))
	assert.Equal(t, []string{"upstream-1"}, md.Get("x-request-id"))
}

func TestWorkflowGRPCClient_StatusPassthrough(t *testing.T) {
	c, _ := newRecordingClient(t)

	_, err := c.CancelRequest(context.Background(), 1, "")
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
