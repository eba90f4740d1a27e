// Package utils provides common utility functions for the inventory service.
// It includes tolerant type-conversion helpers used when mapping loosely
// typed payloads (OData rows, CMDB columns) onto the record model.
package utils
