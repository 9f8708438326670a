/*
Package health implements liveness checks for the server's two durable
dependencies: the metadata database and the storage root. The aggregate
result is served as JSON on the health endpoint.
*/
package health

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Name identifies the check in the aggregate report
	Name() string
}

// Pinger is the slice of the metadata store the store checker needs.
type Pinger interface {
	ContainedPropertyURIs() ([]string, error)
}

// StoreChecker verifies the metadata database answers queries.
type StoreChecker struct {
	store Pinger
}

// NewStoreChecker returns a checker over the metadata store.
func NewStoreChecker(store Pinger) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.store.ContainedPropertyURIs()
	result := Result{
		Healthy:   err == nil,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// DiskChecker verifies the storage root is present and writable.
type DiskChecker struct {
	root string
}

// NewDiskChecker returns a checker over the storage root directory.
func NewDiskChecker(root string) *DiskChecker {
	return &DiskChecker{root: root}
}

func (c *DiskChecker) Name() string { return "disk" }

func (c *DiskChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{CheckedAt: start}

	probe := filepath.Join(c.root, ".health")
	err := os.WriteFile(probe, []byte("ok"), 0600)
	if err == nil {
		err = os.Remove(probe)
	}
	result.Healthy = err == nil
	if err != nil {
		result.Message = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
