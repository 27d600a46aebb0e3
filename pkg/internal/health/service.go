// Package health serves the grpc health checking protocol
// (https://godoc.org/google.golang.org/grpc/health/grpc_health_v1).
package health

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	rpc "google.golang.org/grpc/health/grpc_health_v1"
)

// CheckFn reports the current health.
type CheckFn func(ctx context.Context) (*rpc.HealthCheckResponse, error)

// New listens on addr and returns a func serving health checks until ctx is done.
func New(addr string) (run func(ctx context.Context, checkFn CheckFn) error, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, checkFn CheckFn) error {
		s := grpc.NewServer(grpc.ConnectionTimeout(time.Second * 3))
		rpc.RegisterHealthServer(s, &server{checkFn: checkFn})
		go func() {
			<-ctx.Done()
			s.Stop()
		}()
		if err := s.Serve(ln); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}, nil
}

// Status returns a response that is SERVING if ok.
func Status(ok bool) *rpc.HealthCheckResponse {
	if ok {
		return &rpc.HealthCheckResponse{Status: rpc.HealthCheckResponse_SERVING}
	}
	return &rpc.HealthCheckResponse{Status: rpc.HealthCheckResponse_NOT_SERVING}
}

type server struct {
	rpc.UnimplementedHealthServer
	checkFn CheckFn
}

func (s *server) Check(ctx context.Context, _ *rpc.HealthCheckRequest) (*rpc.HealthCheckResponse, error) {
	return s.checkFn(ctx)
}
