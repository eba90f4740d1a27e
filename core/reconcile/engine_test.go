package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
)

func provRecord(name, disk string) inventory.PartialRecord {
	return inventory.PartialRecord{
		Identity:     identity.Normalize(name, "", ""),
		Provisioning: &inventory.ProvisioningGroup{DiskName: disk, Site: "SITE1"},
	}
}

func brokerRecord(name, catalog, provType string) inventory.PartialRecord {
	return inventory.PartialRecord{
		Identity: identity.Normalize(name, "", ""),
		Orchestration: &inventory.OrchestrationGroup{
			Catalog:           catalog,
			ProvisioningType:  provType,
			RegistrationState: "Registered",
		},
	}
}

func primarySet(records ...inventory.PartialRecord) SourceSet {
	return SourceSet{Name: "pvs", Rank: RankProvisioning, Records: records}
}

func TestMerge_UnionCompleteness(t *testing.T) {
	primary := primarySet(provRecord("SRV01", "gold.vhdx"))

	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			brokerRecord("SRV01", "Win10", "PVS"),
		}},
		{Name: "vcenter", Rank: RankVirtualization, Records: []inventory.PartialRecord{
			{
				Identity:       identity.Normalize("srv01_replica", "", "_"),
				Virtualization: &inventory.VirtualizationGroup{VCPUs: 4, Host: "esx01"},
			},
		}},
		{Name: "ad", Rank: RankDirectory, Records: []inventory.PartialRecord{
			{
				Identity:  identity.Normalize("srv01.corp.local", "", ""),
				Directory: &inventory.DirectoryGroup{Description: "pooled desktop"},
			},
		}},
	}

	agg := Merge(primary, secondaries, Options{})
	require.Equal(t, 1, agg.Len())

	rec, ok := agg.Get("SRV01")
	require.True(t, ok)
	assert.Equal(t, "gold.vhdx", rec.Provisioning.DiskName)
	assert.Equal(t, "Win10", rec.Orchestration.Catalog)
	assert.Equal(t, 4, rec.Virtualization.VCPUs)
	assert.Equal(t, "pooled desktop", rec.Directory.Description)
	assert.False(t, rec.Orphan)
	// Domain adopted from the directory's FQDN.
	assert.Equal(t, "CORP", rec.Identity.Domain)
}

func TestMerge_PrecedenceDeterminism(t *testing.T) {
	// Orchestration and directory both claim the orchestration group; the
	// higher-precedence source must win regardless of slice order.
	ddc := SourceSet{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
		brokerRecord("SRV01", "from-ddc", "PVS"),
	}}
	stale := SourceSet{Name: "cmdb", Rank: RankDirectory, Records: []inventory.PartialRecord{
		{
			Identity:      identity.Normalize("SRV01", "", ""),
			Orchestration: &inventory.OrchestrationGroup{Catalog: "from-cmdb"},
			Directory:     &inventory.DirectoryGroup{Description: "cmdb row"},
		},
	}}

	for name, order := range map[string][]SourceSet{
		"high precedence first": {ddc, stale},
		"low precedence first":  {stale, ddc},
	} {
		t.Run(name, func(t *testing.T) {
			agg := Merge(primarySet(provRecord("SRV01", "gold.vhdx")), order, Options{})

			rec, ok := agg.Get("SRV01")
			require.True(t, ok)
			assert.Equal(t, "from-ddc", rec.Orchestration.Catalog)
			// The losing source's other groups still merge.
			assert.Equal(t, "cmdb row", rec.Directory.Description)
		})
	}
}

func TestMerge_Idempotence(t *testing.T) {
	primary := primarySet(provRecord("SRV01", "a.vhdx"), provRecord("SRV02", "b.vhdx"))
	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			brokerRecord("SRV02", "Win10", "PVS"),
			brokerRecord("SRV03", "Win10", "PVS"),
		}},
	}

	first := Merge(primary, secondaries, Options{})
	second := Merge(primary, secondaries, Options{})

	assert.Equal(t, first.Sorted(), second.Sorted())
	assert.Equal(t, first.Manifest.OrphanCounts, second.Manifest.OrphanCounts)
	assert.Equal(t, first.Manifest.Warnings, second.Manifest.Warnings)
}

func TestMerge_OrphanInclusion(t *testing.T) {
	tests := []struct {
		name       string
		filter     string
		wantOrphan bool
	}{
		{name: "matching filter includes", filter: "PVS", wantOrphan: true},
		{name: "non-matching filter excludes", filter: "MCS", wantOrphan: false},
		{name: "wildcard includes", filter: "*", wantOrphan: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := primarySet(
				provRecord("A", "a.vhdx"),
				provRecord("B", "b.vhdx"),
				provRecord("C", "c.vhdx"),
			)
			secondaries := []SourceSet{
				{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
					brokerRecord("A", "Win10", "PVS"),
					brokerRecord("B", "Win10", "PVS"),
					brokerRecord("C", "Win10", "PVS"),
					brokerRecord("D", "Win10", "PVS"),
				}},
			}

			agg := Merge(primary, secondaries, Options{
				OrphanPredicate: OrphanProvisioningType(tt.filter),
			})

			rec, ok := agg.Get("D")
			if !tt.wantOrphan {
				assert.False(t, ok)
				assert.Equal(t, 3, agg.Len())
				return
			}
			require.True(t, ok)
			assert.True(t, rec.Orphan)
			assert.Equal(t, "ddc", rec.Provenance)
			assert.Equal(t, 1, agg.Manifest.OrphanCounts["ddc"])
			assert.Equal(t, 4, agg.Len())
		})
	}
}

func TestMerge_OrphanWithoutCatalogInfoIncluded(t *testing.T) {
	// A device the broker cannot classify must surface rather than vanish.
	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			{
				Identity:      identity.Normalize("GHOST01", "", ""),
				Orchestration: &inventory.OrchestrationGroup{RegistrationState: "Unregistered"},
			},
		}},
	}

	agg := Merge(primarySet(), secondaries, Options{
		OrphanPredicate: OrphanProvisioningType("PVS"),
	})

	rec, ok := agg.Get("GHOST01")
	require.True(t, ok)
	assert.True(t, rec.Orphan)
}

func TestMerge_OrphanAttachesLaterSources(t *testing.T) {
	// Directory data fetched for an orphan candidate still lands on the
	// synthesized record.
	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			brokerRecord("D", "Win10", "PVS"),
		}},
		{Name: "ad", Rank: RankDirectory, Records: []inventory.PartialRecord{
			{
				Identity:  identity.Normalize("D", "", ""),
				Directory: &inventory.DirectoryGroup{Description: "orphaned vm"},
			},
		}},
	}

	agg := Merge(primarySet(provRecord("A", "a.vhdx")), secondaries, Options{})

	rec, ok := agg.Get("D")
	require.True(t, ok)
	assert.True(t, rec.Orphan)
	assert.Equal(t, "ddc", rec.Provenance)
	require.NotNil(t, rec.Directory)
	assert.Equal(t, "orphaned vm", rec.Directory.Description)
}

func TestMerge_DuplicateIdentityFirstWins(t *testing.T) {
	primary := primarySet(
		provRecord("SRV01", "first.vhdx"),
		provRecord("SRV01", "second.vhdx"),
	)

	agg := Merge(primary, nil, Options{})

	require.Equal(t, 1, agg.Len())
	rec, _ := agg.Get("SRV01")
	assert.Equal(t, "first.vhdx", rec.Provisioning.DiskName)

	require.Len(t, agg.Manifest.Warnings, 1)
	w := agg.Manifest.Warnings[0]
	assert.Equal(t, WarnDuplicateIdentity, w.Kind)
	assert.Equal(t, "pvs", w.Source)
	assert.Equal(t, "SRV01", w.Device)
}

func TestMerge_DomainConflictDropsContribution(t *testing.T) {
	primary := primarySet(inventory.PartialRecord{
		Identity:     identity.Normalize(`CORP\SRV01`, "", ""),
		Provisioning: &inventory.ProvisioningGroup{DiskName: "gold.vhdx"},
	})
	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			{
				Identity:      identity.Normalize(`EMEA\SRV01`, "", ""),
				Orchestration: &inventory.OrchestrationGroup{Catalog: "Win10"},
			},
		}},
	}

	agg := Merge(primary, secondaries, Options{})

	rec, ok := agg.Get("SRV01")
	require.True(t, ok)
	assert.Nil(t, rec.Orchestration, "conflicting contribution must not merge")
	assert.Equal(t, "CORP", rec.Identity.Domain)

	require.Len(t, agg.Manifest.Warnings, 1)
	assert.Equal(t, WarnMergeConflict, agg.Manifest.Warnings[0].Kind)
}

func TestMerge_NormalizedIdentitiesCollapse(t *testing.T) {
	// CORP\SRV01 from the provisioning plane and srv01.corp.local from the
	// directory are the same machine.
	primary := primarySet(inventory.PartialRecord{
		Identity:     identity.Normalize(`CORP\SRV01`, "", ""),
		Provisioning: &inventory.ProvisioningGroup{DiskName: "gold.vhdx"},
	})
	secondaries := []SourceSet{
		{Name: "ad", Rank: RankDirectory, Records: []inventory.PartialRecord{
			{
				Identity:  identity.Normalize("srv01.corp.local", "", ""),
				Directory: &inventory.DirectoryGroup{Description: "vdi worker"},
			},
		}},
	}

	agg := Merge(primary, secondaries, Options{})

	require.Equal(t, 1, agg.Len())
	rec, _ := agg.Get("SRV01")
	assert.NotNil(t, rec.Provisioning)
	assert.NotNil(t, rec.Directory)
	assert.Empty(t, agg.Manifest.Warnings)
}

func TestMerge_TimedOutTelemetryVisible(t *testing.T) {
	primary := primarySet(provRecord("SRV01", "gold.vhdx"))
	secondaries := []SourceSet{
		{Name: "telemetry", Rank: RankTelemetry, Records: []inventory.PartialRecord{
			{
				Identity:       identity.Normalize("SRV01", "", ""),
				TelemetryState: inventory.TelemetryTimedOut,
			},
		}},
	}

	agg := Merge(primary, secondaries, Options{})

	rec, ok := agg.Get("SRV01")
	require.True(t, ok)
	assert.Nil(t, rec.Telemetry)
	assert.Equal(t, inventory.TelemetryTimedOut, rec.TelemetryState)
}

func TestMerge_MonotonicUnion(t *testing.T) {
	// A later, lower-precedence record with a nil group must not clear a
	// group that was already merged.
	primary := primarySet(provRecord("SRV01", "gold.vhdx"))
	secondaries := []SourceSet{
		{Name: "ddc", Rank: RankOrchestration, Records: []inventory.PartialRecord{
			brokerRecord("SRV01", "Win10", "PVS"),
		}},
		{Name: "telemetry", Rank: RankTelemetry, Records: []inventory.PartialRecord{
			{
				Identity:  identity.Normalize("SRV01", "", ""),
				Telemetry: &inventory.TelemetryGroup{BootTime: time.Now(), FreeMemoryPct: 42},
			},
		}},
	}

	agg := Merge(primary, secondaries, Options{})

	rec, _ := agg.Get("SRV01")
	assert.NotNil(t, rec.Provisioning)
	assert.NotNil(t, rec.Orchestration)
	assert.NotNil(t, rec.Telemetry)
}

func TestOrphanProvisioningType(t *testing.T) {
	pvs := &inventory.PartialRecord{
		Orchestration: &inventory.OrchestrationGroup{ProvisioningType: "PVS"},
	}
	mcs := &inventory.PartialRecord{
		Orchestration: &inventory.OrchestrationGroup{ProvisioningType: "MCS"},
	}
	unknown := &inventory.PartialRecord{}

	pred := OrphanProvisioningType("pvs")
	assert.True(t, pred("ddc", pvs), "case-insensitive match")
	assert.False(t, pred("ddc", mcs))
	assert.True(t, pred("ddc", unknown), "unclassifiable devices surface")

	assert.True(t, OrphanProvisioningType("*")("ddc", mcs))
	assert.False(t, OrphanNone("ddc", pvs))
}
