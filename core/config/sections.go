package config

import "time"

// Sources configures which inventory source adapters the pipeline uses and
// how device names from each plane are normalized.
type Sources struct {
	// Mode selects the adapter wiring: "fake" for the built-in deterministic
	// fleet, "live" for the OData broker and CMDB directory adapters.
	Mode string `mapstructure:"mode" default:"fake"`

	// Primary designates the authoritative source the fleet is defined by:
	// "provisioning" or "orchestration". Everything else is secondary.
	Primary string `mapstructure:"primary" default:"provisioning"`

	// OrphanFilter is the catalog provisioning type that qualifies a
	// secondary-only device for inclusion (e.g. "PVS"). "*" includes all.
	OrphanFilter string `mapstructure:"orphan_filter" default:"PVS"`

	// VMSplitChar truncates hypervisor display names at its first
	// occurrence before identity normalization (suffixed clones).
	VMSplitChar string `mapstructure:"vm_split_char" default:"_"`

	// DeviceFilter is passed to the primary source's ListDevices.
	DeviceFilter string `mapstructure:"device_filter" default:""`

	// ODataEndpoint is the broker's Monitor OData base URL (live mode).
	ODataEndpoint string `mapstructure:"odata_endpoint" default:""`
	// ODataUsername and ODataPassword authenticate against the broker API.
	ODataUsername string `mapstructure:"odata_username" default:""`
	ODataPassword string `mapstructure:"odata_password" default:""`
	// ODataTimeoutSeconds bounds every broker HTTP call.
	ODataTimeoutSeconds int `mapstructure:"odata_timeout_seconds" default:"30"`

	// FakeFleetSize and FakeSeed shape the built-in fleet (fake mode).
	FakeFleetSize int   `mapstructure:"fake_fleet_size" default:"50"`
	FakeSeed      int64 `mapstructure:"fake_seed" default:"1"`
}

// ODataTimeout returns the broker call deadline as a duration.
func (s Sources) ODataTimeout() time.Duration {
	if s.ODataTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ODataTimeoutSeconds) * time.Second
}

// Report configures rendering and publication of run artifacts.
type Report struct {
	// OutputDir is where the snapshot command writes CSV/JSON files.
	OutputDir string `mapstructure:"output_dir" default:"."`

	// Upload publishes rendered artifacts to object storage when true.
	Upload bool `mapstructure:"upload" default:"false"`

	// Prefix is the object key prefix for published artifacts.
	Prefix string `mapstructure:"prefix" default:"reports"`
}
