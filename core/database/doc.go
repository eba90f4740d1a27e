// Package database handles CMDB database connections and schema inspection.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to properly
// configure MySQL connections based on the application's configuration, plus a
// sqlite dialect used by tests.
//
// # Connect
//
// The generic Connect function establishes a connection to the database. The
// CMDB only backs the directory source, so a failed connection degrades the
// run (directory fields absent) rather than aborting it.
//
// # Schema Inspection
//
// The package includes tools to inspect the database schema, used by the
// doctor command to verify that the computers table the directory adapter
// reads from actually carries the expected columns.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Warn("CMDB unavailable", zap.Error(err))
//	}
//
//	columns, err := database.GetTableColumns(db, "computers")
package database
