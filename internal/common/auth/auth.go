// Package auth carries the caller identity supplied by the upstream
// identity layer. Tokens are verified by the gateway; this service only
// trusts the resolved employee id it forwards.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/identra/be-hr-workflows/internal/common/errors"
)

const (
	// HeaderEmployeeID is set by the gateway after token verification.
	HeaderEmployeeID = "X-Employee-ID"
	// HeaderRole carries the caller's primary role code.
	HeaderRole = "X-Employee-Role"

	// RoleService marks trusted peer services, which may act for another employee.
	RoleService = "SERVICE"

	metadataEmployeeID = "x-employee-id"
	metadataRole       = "x-employee-role"
)

const malformedIdentityBody = `{"error":{"code":"UNAUTHENTICATED","category":"authorization","message":"malformed employee id"}}` + "\n"

// UserContext is the authenticated caller.
type UserContext struct {
	EmployeeID int64
	Role       string
}

type ctxKey struct{}

// WithUserContext stores uc in ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// GetUserContext returns the caller or an UNAUTHENTICATED error.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(ctxKey{}).(*UserContext)
	if !ok || uc == nil {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "caller identity is missing")
	}
	return uc, nil
}

// EmployeeID returns the caller's employee id, or 0 when unauthenticated.
func EmployeeID(ctx context.Context) int64 {
	if uc, err := GetUserContext(ctx); err == nil {
		return uc.EmployeeID
	}
	return 0
}

func parse(rawID, role string) (*UserContext, bool, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, false, nil
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, true, errors.New(errors.ErrCodeUnauthenticated, "malformed employee id")
	}
	return &UserContext{EmployeeID: id, Role: strings.TrimSpace(role)}, true, nil
}

// HTTPMiddleware attaches the caller identity from gateway headers.
// Requests without the header pass through anonymously; handlers that need
// an identity call GetUserContext.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uc, present, err := parse(r.Header.Get(HeaderEmployeeID), r.Header.Get(HeaderRole))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(malformedIdentityBody))
			return
		}
		if present {
			r = r.WithContext(WithUserContext(r.Context(), uc))
		}
		next.ServeHTTP(w, r)
	})
}

// UnaryServerInterceptor attaches the caller identity from gRPC metadata.
func UnaryServerInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		uc, present, err := parse(first(md, metadataEmployeeID), first(md, metadataRole))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "malformed employee id")
		}
		if present {
			ctx = WithUserContext(ctx, uc)
		}
	}
	return handler(ctx, req)
}

// ActingFor returns the employee a call is made for. Zero means the caller
// itself. Only RoleService callers may name a different employee.
func ActingFor(ctx context.Context, requested int64) (int64, error) {
	uc, err := GetUserContext(ctx)
	if err != nil {
		return 0, err
	}
	if requested == 0 || requested == uc.EmployeeID {
		return uc.EmployeeID, nil
	}
	if uc.Role != RoleService {
		return 0, errors.New(errors.ErrCodeForbidden,
			fmt.Sprintf("employee %d cannot act for employee %d", uc.EmployeeID, requested))
	}
	return requested, nil
}

// OutgoingContext forwards the caller identity on outbound gRPC calls.
func OutgoingContext(ctx context.Context) context.Context {
	uc, err := GetUserContext(ctx)
	if err != nil {
		return ctx
	}
	pairs := []string{metadataEmployeeID, strconv.FormatInt(uc.EmployeeID, 10)}
	if uc.Role != "" {
		pairs = append(pairs, metadataRole, uc.Role)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

// SetOutgoingHeaders forwards the caller identity on outbound HTTP calls.
func SetOutgoingHeaders(ctx context.Context, h http.Header) {
	uc, err := GetUserContext(ctx)
	if err != nil {
		return
	}
	h.Set(HeaderEmployeeID, strconv.FormatInt(uc.EmployeeID, 10))
	if uc.Role != "" {
		h.Set(HeaderRole, uc.Role)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
