package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vdi-inventory/core/collector"
	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
	"vdi-inventory/core/reconcile"
)

// Sources bundles the adapters a run draws from. Primary is mandatory; a nil
// optional adapter is simply not consulted.
type Sources struct {
	Primary        inventory.Source
	Orchestration  inventory.Orchestration
	Directory      inventory.Directory
	Virtualization inventory.Virtualization
	Telemetry      inventory.TelemetryProber
}

// Config tunes a run.
type Config struct {
	// DeviceFilter is passed to the primary source's listing call.
	DeviceFilter string
	// OrphanFilter is the catalog provisioning type that qualifies
	// secondary-only devices ("*" includes all, "" same as "*").
	OrphanFilter string
	// VMSplitChar truncates hypervisor display names before normalization.
	VMSplitChar string
	// MaxConcurrency and TaskTimeout bound the remote-call fan-outs.
	MaxConcurrency int
	TaskTimeout    time.Duration
}

// Service runs the inventory pipeline: list, collect, probe, merge.
type Service struct {
	sources Sources
	cfg     Config
	logger  *zap.Logger
}

// NewService creates a snapshot service.
func NewService(sources Sources, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sources: sources, cfg: cfg, logger: logger}
}

// listings holds everything the cheap enumeration phase produced.
type listings struct {
	primary  []identity.Key
	machines []inventory.MachineEntry
	catalogs map[string]string
	vms      []inventory.VMEntry
	skipped  []reconcile.Warning
}

// Run executes one full inventory run. Only a primary listing failure is
// fatal; every other source degrades into manifest warnings.
func (s *Service) Run(ctx context.Context) (*reconcile.Aggregate, error) {
	runID := uuid.NewString()
	started := time.Now()
	log := s.logger.With(zap.String("run_id", runID))

	lst, err := s.enumerate(ctx, log)
	if err != nil {
		return nil, err
	}

	primarySet, detailTallies := s.collectPrimary(ctx, log, lst.primary)
	secondaries, probeTallies := s.collectSecondaries(ctx, log, lst)

	agg := reconcile.Merge(primarySet, secondaries, reconcile.Options{
		OrphanPredicate: reconcile.OrphanProvisioningType(s.cfg.OrphanFilter),
		Log:             log,
	})

	agg.Manifest.RunID = runID
	agg.Manifest.StartedAt = started
	agg.Manifest.Duration = time.Since(started)
	agg.Manifest.TimedOutCount = detailTallies.timedOut + probeTallies.timedOut
	agg.Manifest.FailedCount = detailTallies.failed + probeTallies.failed
	for _, w := range lst.skipped {
		agg.Manifest.SkippedSources = append(agg.Manifest.SkippedSources, w.Source)
		agg.Manifest.Warnings = append(agg.Manifest.Warnings, w)
	}

	log.Info("Inventory run finished",
		zap.Int("records", agg.Len()),
		zap.Int("timed_out", agg.Manifest.TimedOutCount),
		zap.Int("failed", agg.Manifest.FailedCount),
		zap.Strings("skipped_sources", agg.Manifest.SkippedSources),
		zap.Duration("duration", agg.Manifest.Duration),
	)
	return agg, nil
}

// enumerate runs the cheap listing calls in parallel. The primary listing
// aborts the run on failure; optional listings degrade to skip warnings.
func (s *Service) enumerate(ctx context.Context, log *zap.Logger) (*listings, error) {
	lst := &listings{}
	g, gctx := errgroup.WithContext(ctx)

	var primaryErr error
	g.Go(func() error {
		keys, err := s.sources.Primary.ListDevices(gctx, s.cfg.DeviceFilter)
		if err != nil {
			primaryErr = fmt.Errorf("primary source %s: %w", s.sources.Primary.Name(), err)
			return primaryErr
		}
		lst.primary = keys
		return nil
	})

	var machines []inventory.MachineEntry
	var catalogs map[string]string
	var orchErr error
	if s.sources.Orchestration != nil {
		g.Go(func() error {
			var err error
			if machines, err = s.sources.Orchestration.ListMachines(gctx); err != nil {
				orchErr = err
				return nil
			}
			if catalogs, err = s.sources.Orchestration.ListCatalogs(gctx); err != nil {
				orchErr = err
				machines = nil
			}
			return nil
		})
	}

	var vms []inventory.VMEntry
	var virtErr error
	if s.sources.Virtualization != nil {
		g.Go(func() error {
			var err error
			if vms, err = s.sources.Virtualization.ListVMs(gctx, ""); err != nil {
				virtErr = err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	lst.machines, lst.catalogs, lst.vms = machines, catalogs, vms
	if orchErr != nil {
		log.Warn("Orchestration source skipped", zap.Error(orchErr))
		lst.skipped = append(lst.skipped, reconcile.Warning{
			Kind: reconcile.WarnSourceSkipped, Source: "orchestration", Detail: orchErr.Error(),
		})
	}
	if virtErr != nil {
		log.Warn("Virtualization source skipped", zap.Error(virtErr))
		lst.skipped = append(lst.skipped, reconcile.Warning{
			Kind: reconcile.WarnSourceSkipped, Source: "virtualization", Detail: virtErr.Error(),
		})
	}
	return lst, nil
}

type tallies struct {
	timedOut int
	failed   int
}

// collectPrimary fans per-device detail calls out over the bounded pool and
// folds the outcomes into the primary record set.
func (s *Service) collectPrimary(ctx context.Context, log *zap.Logger, keys []identity.Key) (reconcile.SourceSet, tallies) {
	pool := collector.New[*inventory.PartialRecord](s.cfg.MaxConcurrency, s.cfg.TaskTimeout, log)
	for _, key := range keys {
		key := key
		pool.Submit(key, func(taskCtx context.Context) (*inventory.PartialRecord, error) {
			return s.sources.Primary.GetDeviceDetail(taskCtx, key)
		})
	}
	outcomes := pool.Drain(ctx)

	set := reconcile.SourceSet{Name: s.sources.Primary.Name(), Rank: reconcile.RankProvisioning}
	var t tallies
	for _, key := range keys {
		o, ok := outcomes[key.String()]
		if !ok {
			continue
		}
		switch o.Status {
		case collector.StatusCompleted:
			set.Records = append(set.Records, *o.Result)
		case collector.StatusTimedOut:
			t.timedOut++
			// The device is still real: the listing proved it exists.
			set.Records = append(set.Records, inventory.PartialRecord{Identity: key})
		default:
			t.failed++
			log.Warn("Primary detail failed",
				zap.String("device", key.String()), zap.Error(o.Err))
			set.Records = append(set.Records, inventory.PartialRecord{Identity: key})
		}
	}
	return set, t
}

// collectSecondaries builds every secondary record set: the listing-based
// sets are reshaped in memory, the per-device probes fan out over pools.
func (s *Service) collectSecondaries(ctx context.Context, log *zap.Logger, lst *listings) ([]reconcile.SourceSet, tallies) {
	var sets []reconcile.SourceSet
	var t tallies

	if len(lst.machines) > 0 {
		set := reconcile.SourceSet{Name: "orchestration", Rank: reconcile.RankOrchestration}
		for _, m := range lst.machines {
			group := m.Group
			if group.ProvisioningType == "" && lst.catalogs != nil {
				group.ProvisioningType = lst.catalogs[m.Catalog]
			}
			set.Records = append(set.Records, inventory.PartialRecord{
				Identity:      m.Identity,
				Orchestration: &group,
			})
		}
		sets = append(sets, set)
	}

	if len(lst.vms) > 0 {
		set := reconcile.SourceSet{Name: "virtualization", Rank: reconcile.RankVirtualization}
		for _, vm := range lst.vms {
			group := vm.Group
			set.Records = append(set.Records, inventory.PartialRecord{
				Identity:       identity.Normalize(vm.Name, "", s.cfg.VMSplitChar),
				Virtualization: &group,
			})
		}
		sets = append(sets, set)
	}

	// Per-device probes cover the union of primary and broker identities so
	// orphans pick up directory and telemetry data too.
	probeKeys := s.probeTargets(lst)

	if s.sources.Directory != nil {
		set, dt := s.probeDirectory(ctx, log, probeKeys)
		sets = append(sets, set)
		t.timedOut += dt.timedOut
		t.failed += dt.failed
	}
	if s.sources.Telemetry != nil {
		set, tt := s.probeTelemetry(ctx, log, probeKeys)
		sets = append(sets, set)
		t.timedOut += tt.timedOut
		t.failed += tt.failed
	}
	return sets, t
}

// probeTargets is the primary identity list plus the broker-only machines
// that would survive the orphan filter. Probing a machine the filter rejects
// would smuggle it back into the merge as an unclassifiable orphan.
func (s *Service) probeTargets(lst *listings) []identity.Key {
	qualifies := reconcile.OrphanProvisioningType(s.cfg.OrphanFilter)

	seen := make(map[string]struct{}, len(lst.primary))
	keys := make([]identity.Key, 0, len(lst.primary))
	for _, k := range lst.primary {
		seen[k.ShortName] = struct{}{}
		keys = append(keys, k)
	}
	for _, m := range lst.machines {
		if _, dup := seen[m.Identity.ShortName]; dup {
			continue
		}
		group := m.Group
		if group.ProvisioningType == "" && lst.catalogs != nil {
			group.ProvisioningType = lst.catalogs[m.Catalog]
		}
		rec := inventory.PartialRecord{Identity: m.Identity, Orchestration: &group}
		if !qualifies("orchestration", &rec) {
			continue
		}
		seen[m.Identity.ShortName] = struct{}{}
		keys = append(keys, m.Identity)
	}
	return keys
}

func (s *Service) probeDirectory(ctx context.Context, log *zap.Logger, keys []identity.Key) (reconcile.SourceSet, tallies) {
	pool := collector.New[*inventory.DirectoryGroup](s.cfg.MaxConcurrency, s.cfg.TaskTimeout, log)
	for _, key := range keys {
		key := key
		pool.Submit(key, func(taskCtx context.Context) (*inventory.DirectoryGroup, error) {
			return s.sources.Directory.Lookup(taskCtx, key.ShortName)
		})
	}
	outcomes := pool.Drain(ctx)

	set := reconcile.SourceSet{Name: "directory", Rank: reconcile.RankDirectory}
	var t tallies
	// Fold in listing order so the rendered document is byte-stable.
	for _, key := range keys {
		o, ok := outcomes[key.String()]
		if !ok {
			continue
		}
		switch o.Status {
		case collector.StatusCompleted:
			set.Records = append(set.Records, inventory.PartialRecord{
				Identity:  o.Key,
				Directory: o.Result,
			})
		case collector.StatusTimedOut:
			t.timedOut++
		default:
			// Machines without a computer account are expected; everything
			// else counts as a failure.
			if errors.Is(o.Err, inventory.ErrNotFound) {
				continue
			}
			t.failed++
		}
	}
	return set, t
}

func (s *Service) probeTelemetry(ctx context.Context, log *zap.Logger, keys []identity.Key) (reconcile.SourceSet, tallies) {
	pool := collector.New[*inventory.TelemetryGroup](s.cfg.MaxConcurrency, s.cfg.TaskTimeout, log)
	for _, key := range keys {
		key := key
		pool.Submit(key, func(taskCtx context.Context) (*inventory.TelemetryGroup, error) {
			return s.sources.Telemetry.GetTelemetry(taskCtx, key.ShortName, s.cfg.TaskTimeout)
		})
	}
	outcomes := pool.Drain(ctx)

	set := reconcile.SourceSet{Name: "telemetry", Rank: reconcile.RankTelemetry}
	var t tallies
	// Fold in listing order so the rendered document is byte-stable.
	for _, key := range keys {
		o, ok := outcomes[key.String()]
		if !ok {
			continue
		}
		rec := inventory.PartialRecord{Identity: o.Key}
		switch o.Status {
		case collector.StatusCompleted:
			rec.Telemetry = o.Result
			rec.TelemetryState = inventory.TelemetryOK
		case collector.StatusTimedOut:
			t.timedOut++
			rec.TelemetryState = inventory.TelemetryTimedOut
		default:
			t.failed++
			rec.TelemetryState = inventory.TelemetryUnreachable
		}
		set.Records = append(set.Records, rec)
	}
	return set, t
}
