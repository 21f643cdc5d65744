package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-transcription-service/internal/observability/metrics"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestUnaryServerInterceptor(t *testing.T) {
	tests := []struct {
		name    string
		session SessionFunc
		err     error
		code    string
		logged  string
	}{
		{"ok with session", func() string { return "sess-1" }, nil, "OK", `"sessionId":"sess-1"`},
		{"error without session", func() string { return "" }, status.Error(codes.NotFound, "unknown service"), "NotFound", `"level":"warn"`},
		{"nil session func", nil, errors.New("boom"), "Unknown", `"code":"Unknown"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			m := metrics.NewMetrics(prometheus.NewRegistry())
			info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

			resp, err := UnaryServerInterceptor(m, tt.session)(context.Background(), "req", info,
				func(ctx context.Context, req interface{}) (interface{}, error) {
					return "resp", tt.err
				})

			if resp != "resp" {
				t.Errorf("expected handler response, got %v", resp)
			}
			if err != tt.err {
				t.Errorf("expected handler error %v, got %v", tt.err, err)
			}
			if got := testutil.ToFloat64(m.GRPCUnaryCallsTotal.WithLabelValues(info.FullMethod, tt.code)); got != 1 {
				t.Errorf("expected 1 call with code %s, got %v", tt.code, got)
			}
			if !strings.Contains(buf.String(), tt.logged) {
				t.Errorf("expected log to contain %s, got %s", tt.logged, buf.String())
			}
		})
	}
}

func TestUnaryServerInterceptor_NoSessionField(t *testing.T) {
	buf := captureLogs(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	UnaryServerInterceptor(m, func() string { return "" })(context.Background(), nil, info,
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil })

	if strings.Contains(buf.String(), "sessionId") {
		t.Errorf("expected no sessionId without a session, got %s", buf.String())
	}
}

type fakeServerStream struct {
	grpc.ServerStream
}

func TestStreamServerInterceptor(t *testing.T) {
	buf := captureLogs(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	err := StreamServerInterceptor(m, func() string { return "sess-2" })(nil, fakeServerStream{}, info,
		func(srv interface{}, ss grpc.ServerStream) error {
			if got := testutil.ToFloat64(m.GRPCStreamsActive); got != 1 {
				t.Errorf("expected 1 active stream during the call, got %v", got)
			}
			return status.Error(codes.Canceled, "client went away")
		})

	if status.Code(err) != codes.Canceled {
		t.Errorf("expected Canceled, got %v", err)
	}
	if got := testutil.ToFloat64(m.GRPCStreamsActive); got != 0 {
		t.Errorf("expected 0 active streams, got %v", got)
	}
	if got := testutil.ToFloat64(m.GRPCStreamsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("expected 1 failed stream, got %v", got)
	}
	if !strings.Contains(buf.String(), `"sessionId":"sess-2"`) {
		t.Errorf("expected session id in log, got %s", buf.String())
	}
}
