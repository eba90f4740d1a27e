// Package collector provides the bounded worker pool that fans per-device
// remote calls out across the fleet.
//
// The fleet contains hosts of unknown reachability: some answer in
// milliseconds, some hang forever. A naive loop serializes on the slowest
// host; this pool instead runs at most MaxConcurrency calls at once and puts
// every call under its own deadline. When a deadline elapses the slot is
// reassigned to the next queued device and the late result, if it ever
// arrives, is discarded. Total wall time is therefore bounded by
// ceil(N/MaxConcurrency) * TaskTimeout even when every host is dead.
//
// Usage:
//
//	pool := collector.New[*inventory.TelemetryGroup](10, 20*time.Second, log)
//	for _, key := range devices {
//	    pool.Submit(key, probe(key))
//	}
//	outcomes := pool.Drain(ctx)
package collector
