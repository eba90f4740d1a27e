// Package inventory defines the data model shared by the whole pipeline:
// the per-source record groups, the PartialRecord a single source
// contributes, and the adapter interfaces each management plane implements.
//
// The vendor APIs themselves (provisioning service, broker, directory,
// hypervisor, WMI telemetry) live behind these interfaces; the engine never
// calls them directly. Adapters signal failure with the sentinel errors
// ErrSourceUnavailable, ErrNotFound and ErrUnreachable so the pipeline can
// degrade gracefully instead of aborting.
package inventory
