// Package cmdb adapts the configuration-management database's computers
// export table as a directory source.
package cmdb
