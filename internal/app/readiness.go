package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a store client capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildStoreCheck returns the readiness probe for the document store. A nil
// sink (startup ran degraded) reports an error rather than panicking.
func BuildStoreCheck(sink Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if sink == nil {
			return fmt.Errorf("store not configured")
		}
		return sink.Ping(ctx)
	}
}
