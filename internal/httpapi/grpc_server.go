package httpapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"gestoria.cloud/internal/obs"
)

// GRPCServer answers grpc.health.v1.Health from the readiness check.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness ReadinessCheck
	version   string
}

// NewGRPCServer creates the gRPC service wrapper. A nil check is always ready.
func NewGRPCServer(r ReadinessCheck, version string) *GRPCServer {
	if r == nil {
		r = PingCheck{}
	}
	return &GRPCServer{readiness: r, version: version}
}

// Register attaches the services to s.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
}

// NewServer builds a grpc.Server with request logging and the health service.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary)}, opts...)
	srv := grpc.NewServer(opts...)
	s.Register(srv)
	return srv
}

// Check reports SERVING for the empty name and serviceName. Readiness
// failures report NOT_SERVING rather than an error.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", serviceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().WithError(err).WithField("version", s.version).Warn("grpc health: not ready")
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := obs.Logger().WithFields(logrus.Fields{
		"rpc":         info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Info("rpc_complete")
	} else {
		entry.Debug("rpc_complete")
	}
	return resp, err
}
