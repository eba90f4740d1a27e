package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"vdi-inventory/core/inventory"
)

// OrphanPredicate decides whether a device found only in a secondary source
// belongs in the output. source is the discovering source's name; rec is its
// own record for the device.
type OrphanPredicate func(source string, rec *inventory.PartialRecord) bool

// OrphanAll includes every secondary-only device.
func OrphanAll(string, *inventory.PartialRecord) bool { return true }

// OrphanNone excludes every secondary-only device.
func OrphanNone(string, *inventory.PartialRecord) bool { return false }

// OrphanProvisioningType includes a secondary-only device when its catalog's
// provisioning type matches want (case-insensitive), or when the record
// carries no catalog information at all (the device cannot be classified, so
// it is surfaced rather than silently dropped). want "*" includes everything.
func OrphanProvisioningType(want string) OrphanPredicate {
	if want == "*" || want == "" {
		return OrphanAll
	}
	return func(_ string, rec *inventory.PartialRecord) bool {
		if !rec.HasCatalogInfo() {
			return true
		}
		return strings.EqualFold(rec.Orchestration.ProvisioningType, want)
	}
}

// Options tunes a merge.
type Options struct {
	// OrphanPredicate filters secondary-only devices. Nil includes all.
	OrphanPredicate OrphanPredicate

	// Log receives per-warning debug lines. Nil disables logging.
	Log *zap.Logger
}

// Merge builds the unified per-device view from the primary source's record
// set and any number of secondary sets.
//
// Every identity in the primary set gets a record seeded with the primary's
// fields. Secondary sets are then applied in precedence order: records whose
// identity exists in the map merge group-by-group (a slot already filled by
// a higher-precedence source is kept), records whose identity is absent are
// orphan candidates and pass through the predicate. Duplicate identities
// inside one set resolve first-occurrence-wins; domain disagreements drop
// the secondary contribution. Both conditions become manifest warnings.
//
// Merge is single-threaded and must only run after all collectors have
// drained; the returned Aggregate is never mutated afterwards.
func Merge(primary SourceSet, secondaries []SourceSet, opts Options) *Aggregate {
	if opts.OrphanPredicate == nil {
		opts.OrphanPredicate = OrphanAll
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	agg := &Aggregate{
		records: make(map[string]*DeviceRecord, len(primary.Records)),
		Manifest: Manifest{
			OrphanCounts: make(map[string]int),
		},
	}

	// Seed from the primary source. A primary listing failure is fatal long
	// before this point, so an empty set here genuinely means an empty farm.
	seen := make(map[string]struct{}, len(primary.Records))
	for i := range primary.Records {
		rec := &primary.Records[i]
		short := rec.Identity.ShortName
		if _, dup := seen[short]; dup {
			agg.warn(opts.Log, Warning{
				Kind:   WarnDuplicateIdentity,
				Source: primary.Name,
				Device: short,
				Detail: fmt.Sprintf("%s listed %s more than once; first occurrence kept", primary.Name, short),
			})
			continue
		}
		seen[short] = struct{}{}
		agg.records[short] = newRecord(rec, primary.Rank)
	}

	// Stable precedence order regardless of how the caller assembled the
	// slice. Name breaks rank ties deterministically.
	ordered := make([]SourceSet, len(secondaries))
	copy(ordered, secondaries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Rank != ordered[j].Rank {
			return ordered[i].Rank < ordered[j].Rank
		}
		return ordered[i].Name < ordered[j].Name
	})

	for _, src := range ordered {
		agg.applySecondary(src, opts)
	}

	agg.Manifest.TotalRecords = len(agg.records)
	return agg
}

// applySecondary merges one secondary source's records into the aggregate.
func (a *Aggregate) applySecondary(src SourceSet, opts Options) {
	seen := make(map[string]struct{}, len(src.Records))

	for i := range src.Records {
		rec := &src.Records[i]
		short := rec.Identity.ShortName

		if _, dup := seen[short]; dup {
			a.warn(opts.Log, Warning{
				Kind:   WarnDuplicateIdentity,
				Source: src.Name,
				Device: short,
				Detail: fmt.Sprintf("%s listed %s more than once; first occurrence kept", src.Name, short),
			})
			continue
		}
		seen[short] = struct{}{}

		existing, ok := a.records[short]
		if !ok {
			// Orphan candidate: present here, absent from the primary set.
			if !opts.OrphanPredicate(src.Name, rec) {
				continue
			}
			orphan := newRecord(rec, src.Rank)
			orphan.Orphan = true
			orphan.Provenance = src.Name
			a.records[short] = orphan
			a.Manifest.OrphanCounts[src.Name]++
			continue
		}

		if existing.Identity.ConflictsWith(rec.Identity) {
			a.warn(opts.Log, Warning{
				Kind:   WarnMergeConflict,
				Source: src.Name,
				Device: short,
				Detail: fmt.Sprintf("domain mismatch for %s: have %s, %s says %s; contribution dropped",
					short, existing.Identity.Domain, src.Name, rec.Identity.Domain),
			})
			continue
		}

		existing.absorb(rec, src.Rank)
	}
}

// newRecord starts a DeviceRecord from one source's contribution.
func newRecord(rec *inventory.PartialRecord, rank Rank) *DeviceRecord {
	out := &DeviceRecord{
		Identity:           rec.Identity,
		provisioningRank:   rankUnset,
		orchestrationRank:  rankUnset,
		directoryRank:      rankUnset,
		virtualizationRank: rankUnset,
		telemetryRank:      rankUnset,
	}
	out.absorb(rec, rank)
	return out
}

// absorb merges one source's groups into the record. A group slot changes
// hands only when the incoming source outranks whoever filled it, so the
// final value depends on declared precedence, never on completion order.
// Slots are never cleared: the union is monotonic.
func (d *DeviceRecord) absorb(rec *inventory.PartialRecord, rank Rank) {
	if rec.Provisioning != nil && rank < d.provisioningRank {
		d.Provisioning = rec.Provisioning
		d.provisioningRank = rank
	}
	if rec.Orchestration != nil && rank < d.orchestrationRank {
		d.Orchestration = rec.Orchestration
		d.orchestrationRank = rank
	}
	if rec.Directory != nil && rank < d.directoryRank {
		d.Directory = rec.Directory
		d.directoryRank = rank
	}
	if rec.Virtualization != nil && rank < d.virtualizationRank {
		d.Virtualization = rec.Virtualization
		d.virtualizationRank = rank
	}
	// Telemetry presence and its timed-out/unreachable marker travel
	// together: a device whose probe never answered must still show up with
	// the marker set.
	if (rec.Telemetry != nil || rec.TelemetryState != "") && rank < d.telemetryRank {
		d.Telemetry = rec.Telemetry
		d.TelemetryState = rec.TelemetryState
		d.telemetryRank = rank
	}

	// Adopt a domain when the record so far had none; conflicting domains
	// were rejected before absorb.
	if d.Identity.Domain == "" && rec.Identity.Domain != "" {
		d.Identity.Domain = rec.Identity.Domain
	}
}

func (a *Aggregate) warn(log *zap.Logger, w Warning) {
	a.Manifest.Warnings = append(a.Manifest.Warnings, w)
	log.Debug("Reconcile warning",
		zap.String("kind", string(w.Kind)),
		zap.String("source", w.Source),
		zap.String("device", w.Device),
		zap.String("detail", w.Detail),
	)
}
