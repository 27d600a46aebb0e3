package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpc "google.golang.org/grpc/health/grpc_health_v1"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestHealth(t *testing.T) {
	addr := freeAddr(t)
	run, err := New(addr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var healthy atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, func(context.Context) (*rpc.HealthCheckResponse, error) {
			return Status(healthy.Load()), nil
		})
	}()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := rpc.NewHealthClient(conn)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	res, err := client.Check(reqCtx, &rpc.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, rpc.HealthCheckResponse_NOT_SERVING, res.GetStatus())

	healthy.Store(true)
	res, err = client.Check(reqCtx, &rpc.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, rpc.HealthCheckResponse_SERVING, res.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("health server did not stop")
	}
}
