package grpcx

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
)

// RequestIDMetadataKey carries the request id between processes, matching
// the HTTP X-Request-Id header.
const RequestIDMetadataKey = "x-request-id"

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func NewRequestID() string {
	return uuid.NewString()
}

// incomingRequestID takes the caller's id from metadata or mints one, and
// echoes it back in the response header.
func incomingRequestID(ctx context.Context) context.Context {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
			id = vals[0]
		}
	}
	if id == "" {
		id = NewRequestID()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
	return WithRequestID(ctx, id)
}

func unaryServerRequestID(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	return handler(incomingRequestID(ctx), req)
}

type requestIDStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s requestIDStream) Context() context.Context { return s.ctx }

// Health Watch is a server stream, so streams get the id too.
func streamServerRequestID(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	return handler(srv, requestIDStream{ServerStream: ss, ctx: incomingRequestID(ss.Context())})
}

// unaryClientRequestID forwards the id of the HTTP request (or gRPC call)
// being served.
func unaryClientRequestID(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	id := httpx.RequestIDFromContext(ctx)
	if id == "" {
		id = RequestIDFromContext(ctx)
	}
	if id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
