package server

import "time"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// SnapshotTTLSeconds is how long a cached inventory snapshot stays fresh
	// before a request is allowed to trigger a new run.
	SnapshotTTLSeconds int `mapstructure:"snapshot_ttl_seconds" default:"300"`
}

// SnapshotTTL returns the snapshot freshness window as a duration.
func (c Config) SnapshotTTL() time.Duration {
	if c.SnapshotTTLSeconds < 0 {
		return 0
	}
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}
