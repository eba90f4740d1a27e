// Package server holds the HTTP server configuration.
//
// While the serve command handles the server startup, this package defines
// the configuration structure for server settings.
//
// # Configuration
//
// The Config struct defines the HTTP port, API key, and the freshness window
// for cached inventory snapshots served by the API.
//
// # Usage
//
// This package is primarily used by the core/config package to embed server
// settings and by the snapshot feature to size its cache.
package server
