package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visionhealth-backend/internal/monitor"
)

// maxBodyBytes caps how much of a health response is kept as metadata.
const maxBodyBytes = 64 << 10

// HTTPProbe classifies a service by a single GET against its health
// endpoint, bounded by the target timeout.
type HTTPProbe struct {
	Client *http.Client
}

func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{Client: &http.Client{}}
}

func (p *HTTPProbe) Check(ctx context.Context, target monitor.ProbeTarget) monitor.ServiceStatus {
	timeout := target.Timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Endpoint, nil)
	if err != nil {
		return unhealthy(err.Error(), 0)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return unhealthy(fmt.Sprintf("timeout after %s: %v", timeout, err), elapsed)
		}
		return unhealthy(err.Error(), elapsed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, reasonPhrase(resp))
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return monitor.ServiceStatus{
			Status:         monitor.StatusDegraded,
			ResponseTimeMs: int(elapsed.Milliseconds()),
			ErrorMessage:   &msg,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return unhealthy(fmt.Sprintf("read body: %v", err), elapsed)
	}
	return monitor.ServiceStatus{
		Status:         monitor.StatusHealthy,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		Metadata:       bodyMetadata(body),
	}
}

// reasonPhrase returns the status text the server sent, falling back to the
// standard text when the status line carries none.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// bodyMetadata keeps a JSON object as-is and wraps anything else.
func bodyMetadata(body []byte) map[string]any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"body": trimmed}
}

func unhealthy(msg string, elapsed time.Duration) monitor.ServiceStatus {
	return monitor.ServiceStatus{
		Status:         monitor.StatusUnhealthy,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		ErrorMessage:   &msg,
	}
}
