// Package config provides configuration management for the inventory service.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, snapshot TTL)
//   - Database: CMDB MySQL connection details (directory source)
//   - Storage: S3/MinIO credentials for report publication
//   - Log: Logging level and format
//   - Collector: worker pool size and per-device deadline
//   - Sources: adapter wiring, orphan filter, name normalization
//   - Report: output directory and publication settings
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
