package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServicePrefix namespaces per-module health entries: a module "sql-algorithm"
// is reported as "rasp.module.sql-algorithm". The empty service name reports
// the agent as a whole.
const ServicePrefix = "rasp.module."

// HealthServer exposes module activation over the standard gRPC health protocol.
type HealthServer struct {
	health *health.Server
	grpc   *grpc.Server
	logger *zap.Logger
}

// NewHealthServer creates the gRPC server with the health service and
// reflection registered. The agent reports SERVING until Shutdown.
func NewHealthServer(logger *zap.Logger) *HealthServer {
	logger = logger.Named("grpc")
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{health: hs, grpc: srv, logger: logger}
}

// SetModuleStatus records a module's activation. Its signature matches
// module.StatusFunc so it can be installed as the manager's observer.
func (s *HealthServer) SetModuleStatus(id string, active bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if active {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServicePrefix+id, st)
}

// Serve accepts connections on lis until ctx is cancelled, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.Shutdown()
		<-errCh
		return nil
	}
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
