package reconcile

import (
	"sort"
	"strings"
	"time"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
)

// Rank orders sources by precedence. A lower rank wins field conflicts;
// arrival order never decides.
type Rank int

const (
	RankProvisioning Rank = iota
	RankOrchestration
	RankVirtualization
	RankDirectory
	RankTelemetry

	// rankUnset marks a group slot no source has contributed to yet.
	rankUnset Rank = 127
)

// String returns the conventional source label for the rank.
func (r Rank) String() string {
	switch r {
	case RankProvisioning:
		return "provisioning"
	case RankOrchestration:
		return "orchestration"
	case RankVirtualization:
		return "virtualization"
	case RankDirectory:
		return "directory"
	case RankTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// SourceSet is one source's complete contribution for the run: its name (for
// provenance and warnings), its precedence rank, and the records it yielded,
// in the order the source yielded them.
type SourceSet struct {
	Name    string
	Rank    Rank
	Records []inventory.PartialRecord
}

// WarningKind classifies the non-fatal conditions a run can surface.
type WarningKind string

const (
	// WarnDuplicateIdentity means one source yielded the same canonical key
	// twice; the second occurrence was discarded.
	WarnDuplicateIdentity WarningKind = "duplicate_identity"
	// WarnMergeConflict means two sources named different domains for the
	// same short name; the secondary contribution was dropped.
	WarnMergeConflict WarningKind = "merge_conflict"
	// WarnSourceSkipped means an entire source was unreachable and
	// contributed nothing.
	WarnSourceSkipped WarningKind = "source_skipped"
)

// Warning is one non-fatal condition, surfaced in the manifest so operators
// can tell "no data because unreachable" from "confirmed absent".
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Source string      `json:"source"`
	Device string      `json:"device,omitempty"`
	Detail string      `json:"detail"`
}

// DeviceRecord is the unified per-device view after merging. Group pointers
// are nil when no source had data for that aspect.
type DeviceRecord struct {
	Identity identity.Key `json:"identity"`

	Provisioning   *inventory.ProvisioningGroup   `json:"provisioning,omitempty"`
	Orchestration  *inventory.OrchestrationGroup  `json:"orchestration,omitempty"`
	Directory      *inventory.DirectoryGroup      `json:"directory,omitempty"`
	Virtualization *inventory.VirtualizationGroup `json:"virtualization,omitempty"`
	Telemetry      *inventory.TelemetryGroup      `json:"telemetry,omitempty"`
	TelemetryState inventory.TelemetryState       `json:"telemetry_state,omitempty"`

	// Orphan is true when the device was discovered only through a secondary
	// source and passed the orphan-inclusion predicate.
	Orphan bool `json:"orphan"`
	// Provenance names the source that discovered an orphan.
	Provenance string `json:"provenance,omitempty"`

	// Rank of the source that filled each group slot. A slot is only
	// overwritten by a strictly higher-precedence source, so the merged
	// value is independent of processing order.
	provisioningRank   Rank
	orchestrationRank  Rank
	directoryRank      Rank
	virtualizationRank Rank
	telemetryRank      Rank
}

// Manifest summarizes one run for the reporting layer.
type Manifest struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration"`
	TotalRecords   int            `json:"total_records"`
	OrphanCounts   map[string]int `json:"orphan_counts"`
	TimedOutCount  int            `json:"timed_out_count"`
	FailedCount    int            `json:"failed_count"`
	SkippedSources []string       `json:"skipped_sources,omitempty"`
	Warnings       []Warning      `json:"warnings,omitempty"`
}

// Aggregate is the read-only result of a run: the merged records plus the
// manifest. Nothing mutates it after the pipeline hands it off.
type Aggregate struct {
	records map[string]*DeviceRecord

	// Manifest is filled in by the merge (counts, warnings) and completed by
	// the pipeline (run ID, timing, collector tallies) before handoff.
	Manifest Manifest
}

// Len returns the number of merged records.
func (a *Aggregate) Len() int {
	return len(a.records)
}

// Get returns the record for a canonical short name.
func (a *Aggregate) Get(shortName string) (*DeviceRecord, bool) {
	rec, ok := a.records[strings.ToUpper(shortName)]
	return rec, ok
}

// Sorted returns every record ordered by canonical key, so identical source
// snapshots always render identical output.
func (a *Aggregate) Sorted() []*DeviceRecord {
	out := make([]*DeviceRecord, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.ShortName < out[j].Identity.ShortName
	})
	return out
}
