package fake

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
)

// Options shapes the generated fleet.
type Options struct {
	// Size is the number of devices the provisioning plane knows about.
	Size int
	// Seed makes the fleet reproducible across runs.
	Seed int64
	// Domain is the directory domain every device belongs to.
	Domain string
	// OrphanCount is how many extra devices exist only on the broker
	// (catalog types alternate PVS/MCS so orphan filters have work to do).
	OrphanCount int
	// UnreachableEvery marks every Nth device as dead to telemetry: its
	// probe hangs until the caller's deadline. Zero disables.
	UnreachableEvery int
	// SlowEvery marks every Nth device as slow: its probe answers after
	// Latency. Zero disables.
	SlowEvery int
	// Latency is the slow-device response time.
	Latency time.Duration
}

type device struct {
	name          string
	catalog       string
	provType      string
	deliveryGroup string
	disk          string
	sessionCount  int
	loadIndex     int
	vcpus         int
	memoryMB      int64
	unreachable   bool
	slow          bool
	orphan        bool
}

// Fleet is a deterministic in-memory farm implementing every source adapter.
// It backs the demo mode, the doctor command and the pipeline tests.
type Fleet struct {
	opts    Options
	domain  string
	devices []device
	boot    time.Time
}

// NewFleet generates a fleet from the options.
func NewFleet(opts Options) *Fleet {
	if opts.Size <= 0 {
		opts.Size = 50
	}
	if opts.Domain == "" {
		opts.Domain = "CORP"
	}
	if opts.Latency == 0 {
		opts.Latency = 50 * time.Millisecond
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	f := &Fleet{
		opts:   opts,
		domain: strings.ToUpper(opts.Domain),
		boot:   time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC),
	}

	for i := 0; i < opts.Size; i++ {
		d := device{
			name:          fmt.Sprintf("VDI%03d", i+1),
			catalog:       fmt.Sprintf("Win10-PVS-%d", i%3+1),
			provType:      "PVS",
			deliveryGroup: fmt.Sprintf("Desktops-%d", i%2+1),
			disk:          fmt.Sprintf("gold-image-v%d.vhdx", i%4+1),
			sessionCount:  rng.Intn(3),
			loadIndex:     rng.Intn(10000),
			vcpus:         2 + 2*(i%2),
			memoryMB:      4096 + int64(i%2)*4096,
		}
		if opts.UnreachableEvery > 0 && (i+1)%opts.UnreachableEvery == 0 {
			d.unreachable = true
		}
		if opts.SlowEvery > 0 && (i+1)%opts.SlowEvery == 0 {
			d.slow = true
		}
		f.devices = append(f.devices, d)
	}

	// Broker-only devices, absent from the provisioning plane.
	for i := 0; i < opts.OrphanCount; i++ {
		provType := "PVS"
		catalog := "Win10-PVS-ghost"
		if i%2 == 1 {
			provType = "MCS"
			catalog = "Win10-MCS-1"
		}
		f.devices = append(f.devices, device{
			name:          fmt.Sprintf("GHOST%02d", i+1),
			catalog:       catalog,
			provType:      provType,
			deliveryGroup: "Desktops-1",
			sessionCount:  0,
			loadIndex:     0,
			vcpus:         2,
			memoryMB:      4096,
			orphan:        true,
		})
	}

	return f
}

func (f *Fleet) key(name string) identity.Key {
	return identity.Key{ShortName: strings.ToUpper(name), Domain: f.domain}
}

func (f *Fleet) find(short string) (*device, bool) {
	short = strings.ToUpper(short)
	for i := range f.devices {
		if f.devices[i].name == short {
			return &f.devices[i], true
		}
	}
	return nil, false
}

// Name implements inventory.Source.
func (f *Fleet) Name() string { return "pvs" }

// ListDevices implements inventory.Source with the provisioning plane's
// view: orphans are invisible here.
func (f *Fleet) ListDevices(ctx context.Context, filter string) ([]identity.Key, error) {
	var keys []identity.Key
	for _, d := range f.devices {
		if d.orphan {
			continue
		}
		if filter != "" && !strings.HasPrefix(d.name, strings.ToUpper(filter)) {
			continue
		}
		keys = append(keys, f.key(d.name))
	}
	return keys, nil
}

// GetDeviceDetail implements inventory.Source.
func (f *Fleet) GetDeviceDetail(ctx context.Context, key identity.Key) (*inventory.PartialRecord, error) {
	d, ok := f.find(key.ShortName)
	if !ok || d.orphan {
		return nil, inventory.ErrNotFound
	}
	return &inventory.PartialRecord{
		Identity: f.key(d.name),
		Provisioning: &inventory.ProvisioningGroup{
			DiskName:      d.disk,
			Store:         "Store01",
			DiskVersion:   "12",
			RetryCount:    0,
			CacheType:     "CacheInDeviceRAMWithOverflowOnHardDisk",
			Site:          "SITE1",
			Collection:    d.deliveryGroup,
			DeviceEnabled: true,
		},
	}, nil
}

// ListMachines implements inventory.Orchestration with the broker's view,
// which includes the orphans.
func (f *Fleet) ListMachines(ctx context.Context) ([]inventory.MachineEntry, error) {
	var machines []inventory.MachineEntry
	for _, d := range f.devices {
		machines = append(machines, inventory.MachineEntry{
			Identity: f.key(d.name),
			Catalog:  d.catalog,
			Group: inventory.OrchestrationGroup{
				Catalog:           d.catalog,
				ProvisioningType:  d.provType,
				DeliveryGroup:     d.deliveryGroup,
				RegistrationState: "Registered",
				SessionCount:      d.sessionCount,
				LoadIndex:         d.loadIndex,
			},
		})
	}
	return machines, nil
}

// ListCatalogs implements inventory.Orchestration.
func (f *Fleet) ListCatalogs(ctx context.Context) (map[string]string, error) {
	catalogs := make(map[string]string)
	for _, d := range f.devices {
		catalogs[d.catalog] = d.provType
	}
	return catalogs, nil
}

// Lookup implements inventory.Directory.
func (f *Fleet) Lookup(ctx context.Context, shortName string) (*inventory.DirectoryGroup, error) {
	d, ok := f.find(shortName)
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &inventory.DirectoryGroup{
		Created:     f.boot.AddDate(-1, 0, 0),
		LastLogon:   f.boot.Add(48 * time.Hour),
		Description: "VDI worker (" + d.catalog + ")",
		MemberOf:    []string{"CN=VDI-Workers", "CN=Domain Computers"},
	}, nil
}

// ListVMs implements inventory.Virtualization. Display names carry a clone
// suffix so callers exercise split-char normalization.
func (f *Fleet) ListVMs(ctx context.Context, namePattern string) ([]inventory.VMEntry, error) {
	var vms []inventory.VMEntry
	for _, d := range f.devices {
		display := d.name + "_1"
		if namePattern != "" && !strings.HasPrefix(display, strings.ToUpper(namePattern)) {
			continue
		}
		powerState := "poweredOn"
		if d.unreachable {
			powerState = "poweredOff"
		}
		vms = append(vms, inventory.VMEntry{
			Name: display,
			Group: inventory.VirtualizationGroup{
				VCPUs:      d.vcpus,
				MemoryMB:   d.memoryMB,
				DiskGB:     60,
				NICs:       1,
				Host:       fmt.Sprintf("esx%02d.lab", len(d.name)%4+1),
				PowerState: powerState,
			},
		})
	}
	return vms, nil
}

// GetTelemetry implements inventory.TelemetryProber. Unreachable devices
// hang until the context deadline, the way a dead WMI endpoint does; slow
// devices answer after the configured latency.
func (f *Fleet) GetTelemetry(ctx context.Context, host string, timeout time.Duration) (*inventory.TelemetryGroup, error) {
	d, ok := f.find(identity.Normalize(host, "", "").ShortName)
	if !ok {
		return nil, inventory.ErrUnreachable
	}

	switch {
	case d.unreachable:
		<-ctx.Done()
		return nil, ctx.Err()
	case d.slow:
		select {
		case <-time.After(f.opts.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &inventory.TelemetryGroup{
		BootTime:      f.boot,
		FreeMemoryPct: 35.5,
		CPUPct:        12.0,
		FreeDiskPct:   48.0,
		DomainTrustOK: true,
	}, nil
}
