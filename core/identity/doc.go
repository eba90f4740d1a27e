// Package identity derives canonical device keys from the inconsistent name
// formats the inventory sources use.
//
// The same physical machine shows up as "SRV01" in the provisioning service,
// "CORP\SRV01" in the broker, "srv01.corp.local" in the directory and
// "srv01_clone" on the hypervisor. Normalize collapses all of these to a
// single Key so records can be correlated across sources.
//
// # Equality
//
// Keys compare case-insensitively (they are stored upper-cased). A key
// without a domain matches any domain; two keys with different domains for
// the same short name are different machines and must never be merged.
package identity
