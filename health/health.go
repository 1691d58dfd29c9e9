package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/captify-io/designer/kv"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProbeTable is the table scanned by BackendCheck. It is never written.
const ProbeTable = "designer-health-probe"

// DefaultTimeout bounds a check whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Status is the outcome of a health check.
type Status struct {
	// Status is one of StatusHealthy, StatusDegraded, StatusUnhealthy.
	Status string `json:"status"`

	// Message is a human-readable description of the outcome.
	Message string `json:"message,omitempty"`

	// Details carries check-specific context such as the failing address.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// Healthy creates a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// BackendCheck sends a scan of ProbeTable through backend.
//
// A transport error is unhealthy. A rejected scan is healthy when the backend
// only reports the probe table as missing, and degraded otherwise, since the
// backend answered but refused the request.
func BackendCheck(ctx context.Context, backend kv.Backend) Status {
	if backend == nil {
		return Unhealthy("backend cannot be nil", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := backend.Run(ctx, kv.ScanRequest(ProbeTable))
	latency := time.Since(start)
	if err != nil {
		return Unhealthy("backend unreachable", map[string]any{
			"error":      err.Error(),
			"latency_ms": latency.Milliseconds(),
		})
	}
	if !resp.Success && !strings.Contains(resp.Error, "ResourceNotFoundException") {
		return Degraded("backend rejected probe", map[string]any{
			"error":      resp.Error,
			"latency_ms": latency.Milliseconds(),
		})
	}
	return Healthy(fmt.Sprintf("backend answered in %s", latency.Round(time.Millisecond)))
}

// NetworkCheck verifies TCP connectivity to address (host:port).
func NetworkCheck(ctx context.Context, address string) Status {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return Unhealthy(fmt.Sprintf("invalid address %q", address), map[string]any{
			"error": err.Error(),
		})
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(fmt.Sprintf("failed to connect to %s", address), map[string]any{
			"address": address,
			"error":   err.Error(),
		})
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// FileCheck verifies that a file or directory exists.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(fmt.Sprintf("path '%s' does not exist", path), map[string]any{
				"path": path,
			})
		}
		return Unhealthy(fmt.Sprintf("failed to stat path '%s'", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}
	return Healthy(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// Combine aggregates checks. Any unhealthy check makes the result unhealthy;
// otherwise any degraded check makes it degraded.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthy),
			"degraded":      len(degraded),
			"healthy":       healthyCount,
			"failed_checks": unhealthy,
		})
	}
	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthyCount,
			"degraded_checks": degraded,
		})
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
