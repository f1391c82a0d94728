package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer wraps the standard grpc health service so services can flip
// their serving status from readiness probes.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

// Listen binds the port and registers the health service. The server only
// starts accepting once Serve is called.
func Listen(port string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryServerRequestID),
		grpc.ChainStreamInterceptor(streamServerRequestID),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{srv: srv, health: hs, lis: lis}, nil
}

func (h *HealthServer) Addr() string { return h.lis.Addr().String() }

// SetServing marks service (empty string means the whole server) as serving or not.
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// Serve runs until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, logger *slog.Logger) {
	go func() {
		logger.Info("grpc server starting", "addr", h.Addr())
		if err := h.srv.Serve(h.lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		h.health.Shutdown()
		h.srv.GracefulStop()
	}()
}

// CheckHealth asks a remote health service for its status.
func CheckHealth(ctx context.Context, addr, service string) (string, error) {
	conn, err := Dial(addr, DialOptions{})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp.GetStatus().String(), nil
}
