package domain

import (
	"context"
	"time"
)

// ProductSource defines the interface for querying the supervised product bridge
type ProductSource interface {
	Search(ctx context.Context, term, region string, limit int) (*BridgeEnvelope, error)
	NewArrivals(ctx context.Context, region string, limit int) (*BridgeEnvelope, error)
	ProductDetail(ctx context.Context, id, region string) (*BridgeEnvelope, error)
}

// BackendSupervisor defines the lifecycle of the locally spawned bridge process
type BackendSupervisor interface {
	// Start extracts the bridge resource and launches the process.
	// Only a missing resource is reported as an error; launch failures leave the backend unavailable.
	Start(ctx context.Context) error
	// WaitUntilHealthy blocks until the health endpoint answers 2xx or the attempts run out.
	WaitUntilHealthy(ctx context.Context, maxAttempts int, interval time.Duration) bool
	// Available reports the result of the startup health check.
	Available() bool
	// Shutdown stops the process and removes the extracted resource. Safe to call more than once.
	Shutdown(ctx context.Context) error
}
