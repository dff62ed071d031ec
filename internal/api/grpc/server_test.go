package grpcapi

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, s *Server, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	return resp.Status
}

func TestHealth_FollowsAdmission(t *testing.T) {
	accepting := true
	s := New("0", func() bool { return accepting })

	for _, svc := range []string{"", ServiceName} {
		if got := check(t, s, svc); got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("service %q: expected SERVING, got %v", svc, got)
		}
	}

	accepting = false
	s.sync()
	if got := check(t, s, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %v", got)
	}
}

func TestHealth_WatchStopsWithContext(t *testing.T) {
	s := New("0", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Watch to return after cancel")
	}
}
