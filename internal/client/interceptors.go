package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/middleware"
)

const metadataRequestID = "x-request-id"

// forwardMetadata is a gRPC unary client interceptor that propagates the
// caller identity and request id to outgoing service-to-service calls.
// Incoming metadata is forwarded as-is when present.
func forwardMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = metadata.NewOutgoingContext(ctx, md.Copy())
	} else {
		ctx = auth.OutgoingContext(ctx)
	}
	if id := middleware.RequestIDFrom(ctx); id != "" {
		if md, _ := metadata.FromOutgoingContext(ctx); len(md.Get(metadataRequestID)) == 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, metadataRequestID, id)
		}
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
