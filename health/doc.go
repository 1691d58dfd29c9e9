// Package health provides health checks for designer persistence backends.
//
// Checks return a Status that is healthy, degraded or unhealthy. Several
// checks fold into one with Combine, which reports the worst state seen:
//
//	status := health.Combine(
//	    health.BackendCheck(ctx, backend),
//	    health.FileCheck("/etc/designer/tls.crt"),
//	)
//	if status.IsUnhealthy() {
//	    log.Printf("store unavailable: %s %v", status.Message, status.Details)
//	}
//
// The store server polls BackendCheck and mirrors the result in its gRPC
// health service.
package health
