package inventory

import (
	"time"

	"vdi-inventory/core/identity"
)

// ProvisioningGroup holds the fields contributed by the provisioning source
// (vDisk assignment, cache mode, site placement).
type ProvisioningGroup struct {
	DiskName       string `json:"disk_name"`
	Store          string `json:"store"`
	DiskVersion    string `json:"disk_version"`
	RetryCount     int    `json:"retry_count"`
	CacheType      string `json:"cache_type"`
	Site           string `json:"site"`
	Collection     string `json:"collection"`
	ServerName     string `json:"server_name,omitempty"`
	DeviceEnabled  bool   `json:"device_enabled"`
	ActiveBootMode string `json:"active_boot_mode,omitempty"`
}

// OrchestrationGroup holds the fields contributed by the broker source.
type OrchestrationGroup struct {
	Catalog           string   `json:"catalog"`
	ProvisioningType  string   `json:"provisioning_type,omitempty"`
	DeliveryGroup     string   `json:"delivery_group"`
	RegistrationState string   `json:"registration_state"`
	MaintenanceMode   bool     `json:"maintenance_mode"`
	SessionCount      int      `json:"session_count"`
	LoadIndex         int      `json:"load_index"`
	Tags              []string `json:"tags,omitempty"`
}

// DirectoryGroup holds the fields contributed by the directory source.
type DirectoryGroup struct {
	Created     time.Time `json:"created"`
	LastLogon   time.Time `json:"last_logon"`
	Description string    `json:"description"`
	MemberOf    []string  `json:"member_of,omitempty"`
}

// VirtualizationGroup holds the fields contributed by the hypervisor source.
type VirtualizationGroup struct {
	VCPUs      int    `json:"vcpus"`
	MemoryMB   int64  `json:"memory_mb"`
	DiskGB     int64  `json:"disk_gb"`
	NICs       int    `json:"nics"`
	Host       string `json:"host"`
	PowerState string `json:"power_state"`
}

// TelemetryGroup holds live per-host data obtained through a remote call.
type TelemetryGroup struct {
	BootTime      time.Time `json:"boot_time"`
	FreeMemoryPct float64   `json:"free_memory_pct"`
	CPUPct        float64   `json:"cpu_pct"`
	FreeDiskPct   float64   `json:"free_disk_pct"`
	DomainTrustOK bool      `json:"domain_trust_ok"`
}

// TelemetryState marks why telemetry fields are present or absent.
type TelemetryState string

const (
	// TelemetryOK means the probe answered and the TelemetryGroup is set.
	TelemetryOK TelemetryState = "ok"
	// TelemetryTimedOut means the probe exceeded its deadline and was
	// abandoned; fields are absent but the device was not skipped.
	TelemetryTimedOut TelemetryState = "timed_out"
	// TelemetryUnreachable means the probe failed outright.
	TelemetryUnreachable TelemetryState = "unreachable"
)

// PartialRecord is one source's view of one device. Every group is optional;
// nil means the source had nothing to say about that aspect.
type PartialRecord struct {
	Identity identity.Key `json:"identity"`

	Provisioning   *ProvisioningGroup   `json:"provisioning,omitempty"`
	Orchestration  *OrchestrationGroup  `json:"orchestration,omitempty"`
	Directory      *DirectoryGroup      `json:"directory,omitempty"`
	Virtualization *VirtualizationGroup `json:"virtualization,omitempty"`
	Telemetry      *TelemetryGroup      `json:"telemetry,omitempty"`

	// TelemetryState is only meaningful when a telemetry probe was attempted.
	TelemetryState TelemetryState `json:"telemetry_state,omitempty"`
}

// HasCatalogInfo reports whether the record carries broker catalog data,
// which the default orphan predicate needs to classify the device.
func (r *PartialRecord) HasCatalogInfo() bool {
	return r.Orchestration != nil && r.Orchestration.ProvisioningType != ""
}
