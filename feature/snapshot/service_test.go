package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
	"vdi-inventory/core/reconcile"
	"vdi-inventory/feature/snapshot"
	"vdi-inventory/feature/sources/fake"
)

func fleetSources(f *fake.Fleet) snapshot.Sources {
	return snapshot.Sources{
		Primary:        f,
		Orchestration:  f,
		Directory:      f,
		Virtualization: f,
		Telemetry:      f,
	}
}

func fastConfig() snapshot.Config {
	return snapshot.Config{
		OrphanFilter:   "PVS",
		VMSplitChar:    "_",
		MaxConcurrency: 8,
		TaskTimeout:    200 * time.Millisecond,
	}
}

func TestService_RunFullPipeline(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 10, OrphanCount: 2})
	svc := snapshot.NewService(fleetSources(f), fastConfig(), zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)

	// 10 provisioned devices plus the PVS ghost; the MCS ghost fails the
	// orphan filter.
	assert.Equal(t, 11, agg.Len())
	assert.NotEmpty(t, agg.Manifest.RunID)
	assert.Equal(t, 11, agg.Manifest.TotalRecords)

	rec, ok := agg.Get("VDI001")
	require.True(t, ok)
	assert.False(t, rec.Orphan)
	require.NotNil(t, rec.Provisioning)
	require.NotNil(t, rec.Orchestration)
	require.NotNil(t, rec.Virtualization)
	require.NotNil(t, rec.Directory)
	require.NotNil(t, rec.Telemetry)
	assert.Equal(t, inventory.TelemetryOK, rec.TelemetryState)
}

func TestService_OrphanFilterAndProvenance(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 4, OrphanCount: 2})
	svc := snapshot.NewService(fleetSources(f), fastConfig(), zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)

	ghost, ok := agg.Get("GHOST01")
	require.True(t, ok)
	assert.True(t, ghost.Orphan)
	assert.Equal(t, "orchestration", ghost.Provenance)
	assert.Equal(t, 1, agg.Manifest.OrphanCounts["orchestration"])

	// Orphans still pick up directory and telemetry data.
	assert.NotNil(t, ghost.Directory)
	assert.Equal(t, inventory.TelemetryOK, ghost.TelemetryState)

	_, ok = agg.Get("GHOST02")
	assert.False(t, ok, "MCS orphan must not pass a PVS filter")
}

func TestService_OrphanWildcardIncludesAll(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 2, OrphanCount: 2})
	cfg := fastConfig()
	cfg.OrphanFilter = "*"
	svc := snapshot.NewService(fleetSources(f), cfg, zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, agg.Len())
}

func TestService_UnreachableDeviceSurvivesRun(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 4, UnreachableEvery: 2})
	svc := snapshot.NewService(fleetSources(f), fastConfig(), zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, agg.Len())

	dead, ok := agg.Get("VDI002")
	require.True(t, ok)
	assert.Nil(t, dead.Telemetry)
	assert.Equal(t, inventory.TelemetryTimedOut, dead.TelemetryState)
	assert.NotNil(t, dead.Provisioning, "other groups stay populated")

	assert.GreaterOrEqual(t, agg.Manifest.TimedOutCount, 2)
}

// failingSource fails every call.
type failingSource struct{ name string }

func (s failingSource) Name() string { return s.name }
func (s failingSource) ListDevices(context.Context, string) ([]identity.Key, error) {
	return nil, inventory.ErrSourceUnavailable
}
func (s failingSource) GetDeviceDetail(context.Context, identity.Key) (*inventory.PartialRecord, error) {
	return nil, inventory.ErrSourceUnavailable
}

// failingOrchestration fails every call.
type failingOrchestration struct{}

func (failingOrchestration) ListMachines(context.Context) ([]inventory.MachineEntry, error) {
	return nil, inventory.ErrSourceUnavailable
}
func (failingOrchestration) ListCatalogs(context.Context) (map[string]string, error) {
	return nil, inventory.ErrSourceUnavailable
}

func TestService_PrimaryFailureIsFatal(t *testing.T) {
	sources := fleetSources(fake.NewFleet(fake.Options{Size: 2}))
	sources.Primary = failingSource{name: "pvs"}
	svc := snapshot.NewService(sources, fastConfig(), zap.NewNop())

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrSourceUnavailable))
}

func TestService_SecondaryFailureDegrades(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 3})
	sources := fleetSources(f)
	sources.Orchestration = failingOrchestration{}
	svc := snapshot.NewService(sources, fastConfig(), zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, agg.Len())
	assert.Contains(t, agg.Manifest.SkippedSources, "orchestration")

	var kinds []reconcile.WarningKind
	for _, w := range agg.Manifest.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, reconcile.WarnSourceSkipped)

	rec, ok := agg.Get("VDI001")
	require.True(t, ok)
	assert.Nil(t, rec.Orchestration)
	assert.NotNil(t, rec.Provisioning)
}

func TestService_BrokerAsPrimary(t *testing.T) {
	f := fake.NewFleet(fake.Options{Size: 3, OrphanCount: 1})
	sources := fleetSources(f)
	sources.Primary = inventory.OrchestrationSource("broker", f)
	svc := snapshot.NewService(sources, fastConfig(), zap.NewNop())

	agg, err := svc.Run(context.Background())
	require.NoError(t, err)

	// The broker sees every machine, so nothing is an orphan.
	assert.Equal(t, 4, agg.Len())
	ghost, ok := agg.Get("GHOST01")
	require.True(t, ok)
	assert.False(t, ghost.Orphan)

	rec, ok := agg.Get("VDI001")
	require.True(t, ok)
	require.NotNil(t, rec.Orchestration)
}

func TestService_RenderedDocumentIsByteStable(t *testing.T) {
	render := func() []byte {
		f := fake.NewFleet(fake.Options{Size: 8, OrphanCount: 2})
		svc := snapshot.NewService(fleetSources(f), fastConfig(), zap.NewNop())

		agg, err := svc.Run(context.Background())
		require.NoError(t, err)

		// Only the run-specific manifest fields may differ between runs.
		agg.Manifest.RunID = "fixed"
		agg.Manifest.StartedAt = time.Time{}
		agg.Manifest.Duration = 0

		data, err := snapshot.RenderJSON(agg)
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, string(render()), string(render()))
}
