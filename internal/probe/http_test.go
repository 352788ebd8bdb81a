package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionhealth-backend/internal/monitor"
)

func TestHTTPProbeHealthyJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","fps":24.5}`))
	}))
	defer srv.Close()

	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "fusion", Endpoint: srv.URL, TimeoutMs: 1000})
	assert.Equal(t, monitor.StatusHealthy, status.Status)
	assert.Nil(t, status.ErrorMessage)
	assert.Equal(t, "ok", status.Metadata["status"])
	assert.Equal(t, 24.5, status.Metadata["fps"])
	assert.GreaterOrEqual(t, status.ResponseTimeMs, 0)
}

func TestHTTPProbeHealthyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong\n"))
	}))
	defer srv.Close()

	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "mediamtx", Endpoint: srv.URL})
	assert.Equal(t, monitor.StatusHealthy, status.Status)
	assert.Equal(t, map[string]any{"body": "pong"}, status.Metadata)
}

func TestHTTPProbeNon2xxIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "reid-service", Endpoint: srv.URL})
	assert.Equal(t, monitor.StatusDegraded, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Equal(t, "HTTP 503: Service Unavailable", *status.ErrorMessage)
}

func TestHTTPProbeKeepsServerReasonPhrase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		buf.WriteString("HTTP/1.1 599 Upstream Stalled\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
		buf.Flush()
	}))
	defer srv.Close()

	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "mediamtx", Endpoint: srv.URL})
	assert.Equal(t, monitor.StatusDegraded, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Equal(t, "HTTP 599: Upstream Stalled", *status.ErrorMessage)
}

func TestHTTPProbeTimeoutIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "yolo-detection", Endpoint: srv.URL, TimeoutMs: 100})
	elapsed := time.Since(start)

	assert.Equal(t, monitor.StatusUnhealthy, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Contains(t, *status.ErrorMessage, "timeout")
	assert.Less(t, elapsed, 2*time.Second)
}

func TestHTTPProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	status := NewHTTPProbe().Check(context.Background(), monitor.ProbeTarget{ServiceName: "face-service", Endpoint: url, TimeoutMs: 500})
	assert.Equal(t, monitor.StatusUnhealthy, status.Status)
	assert.NotNil(t, status.ErrorMessage)
}

func TestHTTPProbeIgnoresCallerCancellationWhenDetached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status := NewHTTPProbe().Check(context.WithoutCancel(ctx), monitor.ProbeTarget{ServiceName: "fusion", Endpoint: srv.URL})
	assert.Equal(t, monitor.StatusHealthy, status.Status)
}
