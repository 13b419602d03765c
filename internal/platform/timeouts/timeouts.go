// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between component boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// CacheOp caps one cache round trip. A cache call that exceeds this bound is
// treated as a miss, never as a request failure.
const CacheOp = 250 * time.Millisecond

// StoreQuery caps one durable store round trip. Store timeouts are hard
// failures surfaced to the caller.
const StoreQuery = 5 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
