// Package workflowsv1 defines the identra.workflows.v1.WorkflowService gRPC
// contract. Messages are google.protobuf.Struct values whose fields match
// the HTTP JSON bodies.
package workflowsv1

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "identra.workflows.v1.WorkflowService"

// Method names.
const (
	MethodCreateTemplate       = "CreateTemplate"
	MethodGetTemplate          = "GetTemplate"
	MethodAddStep              = "AddStep"
	MethodReorderSteps         = "ReorderSteps"
	MethodInitiateWorkflow     = "InitiateWorkflow"
	MethodProcessDecision      = "ProcessDecision"
	MethodCancelRequest        = "CancelRequest"
	MethodGetRequestStatus     = "GetRequestStatus"
	MethodListPendingApprovals = "ListPendingApprovals"
)

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// WorkflowServiceServer is the server API for WorkflowService.
type WorkflowServiceServer interface {
	CreateTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddStep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReorderSteps(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitiateWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessDecision(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRequestStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedWorkflowServiceServer returns Unimplemented for every method.
type UnimplementedWorkflowServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedWorkflowServiceServer) CreateTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCreateTemplate)
}
func (UnimplementedWorkflowServiceServer) GetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetTemplate)
}
func (UnimplementedWorkflowServiceServer) AddStep(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAddStep)
}
func (UnimplementedWorkflowServiceServer) ReorderSteps(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodReorderSteps)
}
func (UnimplementedWorkflowServiceServer) InitiateWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodInitiateWorkflow)
}
func (UnimplementedWorkflowServiceServer) ProcessDecision(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodProcessDecision)
}
func (UnimplementedWorkflowServiceServer) CancelRequest(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCancelRequest)
}
func (UnimplementedWorkflowServiceServer) GetRequestStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetRequestStatus)
}
func (UnimplementedWorkflowServiceServer) ListPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListPendingApprovals)
}

type unaryCall func(WorkflowServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(WorkflowServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for WorkflowService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkflowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler(MethodCreateTemplate, WorkflowServiceServer.CreateTemplate),
		handler(MethodGetTemplate, WorkflowServiceServer.GetTemplate),
		handler(MethodAddStep, WorkflowServiceServer.AddStep),
		handler(MethodReorderSteps, WorkflowServiceServer.ReorderSteps),
		handler(MethodInitiateWorkflow, WorkflowServiceServer.InitiateWorkflow),
		handler(MethodProcessDecision, WorkflowServiceServer.ProcessDecision),
		handler(MethodCancelRequest, WorkflowServiceServer.CancelRequest),
		handler(MethodGetRequestStatus, WorkflowServiceServer.GetRequestStatus),
		handler(MethodListPendingApprovals, WorkflowServiceServer.ListPendingApprovals),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "identra/workflows/v1/workflows.proto",
}

// RegisterWorkflowServiceServer registers srv on s.
func RegisterWorkflowServiceServer(s grpc.ServiceRegistrar, srv WorkflowServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Invoke calls method on cc with a Struct request and response.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode converts a JSON-tagged value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// Decode fills dst from a Struct using dst's JSON tags.
func Decode(s *structpb.Struct, dst any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
