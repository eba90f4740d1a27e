// Package reconcile merges per-source device record sets into a single
// consistent view keyed by canonical identity.
//
// The merge is a multi-way set reconciliation: the designated primary source
// (normally the provisioning service) defines the fleet, secondary sources
// enrich it, and devices that exist only in a secondary source surface as
// orphans when they pass the inclusion predicate. Field conflicts resolve by
// declared source precedence (provisioning over orchestration over
// virtualization over directory over telemetry), never by which remote call
// happened to finish first.
//
// Merging runs single-threaded after the concurrent collection phase has
// fully drained. Reconciling the same immutable snapshots twice yields
// identical output.
package reconcile
