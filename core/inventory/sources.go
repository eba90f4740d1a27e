package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"vdi-inventory/core/identity"
)

// Sentinel errors returned by adapters. The pipeline maps them to manifest
// warnings instead of aborting the run (except a primary listing failure).
var (
	// ErrSourceUnavailable means an entire source cannot be reached; the
	// source contributes nothing for the run.
	ErrSourceUnavailable = errors.New("inventory source unavailable")

	// ErrNotFound means the source has no data for the requested device.
	ErrNotFound = errors.New("device not found")

	// ErrUnreachable means a single device did not answer a remote call.
	ErrUnreachable = errors.New("device unreachable")
)

// Source is the minimal contract of an inventory source that can enumerate
// devices and describe them one at a time. The provisioning service is the
// usual primary Source; the broker adapter also implements it so it can be
// designated primary on farms without a provisioning plane.
type Source interface {
	// Name identifies the source in warnings and provenance fields.
	Name() string

	// ListDevices returns the identities the source knows about. filter is a
	// source-specific pattern ("" lists everything).
	ListDevices(ctx context.Context, filter string) ([]identity.Key, error)

	// GetDeviceDetail returns the source's fields for one device.
	GetDeviceDetail(ctx context.Context, key identity.Key) (*PartialRecord, error)
}

// TelemetryProber fetches live per-host data. Implementations issue a remote
// call that may hang; they must honor ctx and return promptly once it is
// done, even if the far end is still working.
type TelemetryProber interface {
	GetTelemetry(ctx context.Context, host string, timeout time.Duration) (*TelemetryGroup, error)
}

// Directory looks devices up in the directory service. Returns ErrNotFound
// for machines that have no computer account.
type Directory interface {
	Lookup(ctx context.Context, shortName string) (*DirectoryGroup, error)
}

// Virtualization enumerates hypervisor guests matching a display-name
// pattern. Display names may carry suffixes the identity normalizer strips.
type Virtualization interface {
	ListVMs(ctx context.Context, namePattern string) ([]VMEntry, error)
}

// VMEntry is one hypervisor guest: raw display name plus its fields.
type VMEntry struct {
	Name  string
	Group VirtualizationGroup
}

// Orchestration is the broker/controller plane.
type Orchestration interface {
	// ListMachines returns every brokered machine with its fields and the
	// catalog it belongs to.
	ListMachines(ctx context.Context) ([]MachineEntry, error)

	// ListCatalogs returns catalog name to provisioning type (PVS, MCS,
	// Manual) for orphan classification.
	ListCatalogs(ctx context.Context) (map[string]string, error)
}

// MachineEntry is one brokered machine as the orchestration plane sees it.
type MachineEntry struct {
	Identity identity.Key
	Group    OrchestrationGroup
	Catalog  string
}

// OrchestrationSource exposes an orchestration plane as a listing Source so
// the broker can be designated primary on farms without a provisioning
// service.
func OrchestrationSource(name string, o Orchestration) Source {
	return &orchestrationSource{name: name, o: o}
}

type orchestrationSource struct {
	name string
	o    Orchestration
}

func (s *orchestrationSource) Name() string { return s.name }

func (s *orchestrationSource) ListDevices(ctx context.Context, filter string) ([]identity.Key, error) {
	machines, err := s.o.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	var keys []identity.Key
	for _, m := range machines {
		if filter != "" && !strings.HasPrefix(m.Identity.ShortName, strings.ToUpper(filter)) {
			continue
		}
		keys = append(keys, m.Identity)
	}
	return keys, nil
}

func (s *orchestrationSource) GetDeviceDetail(ctx context.Context, key identity.Key) (*PartialRecord, error) {
	machines, err := s.o.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range machines {
		if m.Identity.Equal(key) {
			group := m.Group
			return &PartialRecord{Identity: m.Identity, Orchestration: &group}, nil
		}
	}
	return nil, ErrNotFound
}
