package cmd

import (
	"fmt"

	"vdi-inventory/core/config"
	"vdi-inventory/core/database"
	"vdi-inventory/core/inventory"
	"vdi-inventory/feature/snapshot"
	"vdi-inventory/feature/sources/cmdb"
	"vdi-inventory/feature/sources/fake"
	"vdi-inventory/feature/sources/odata"

	"go.uber.org/zap"
)

// buildSources wires the configured source adapters. In fake mode one
// deterministic in-memory fleet backs every plane; in live mode the broker
// OData client and the CMDB directory are wired, and planes without a
// configured adapter stay nil (the pipeline skips them).
func buildSources(cfg *config.Config, logg *zap.Logger) (snapshot.Sources, error) {
	if cfg.Sources.Mode == "fake" {
		fleet := fake.NewFleet(fake.Options{
			Size:             cfg.Sources.FakeFleetSize,
			Seed:             cfg.Sources.FakeSeed,
			OrphanCount:      2,
			UnreachableEvery: 10,
			SlowEvery:        7,
		})
		var primary inventory.Source = fleet
		switch cfg.Sources.Primary {
		case "", "provisioning":
		case "orchestration":
			primary = inventory.OrchestrationSource("broker", fleet)
		default:
			return snapshot.Sources{}, fmt.Errorf("unknown sources.primary %q (want provisioning or orchestration)", cfg.Sources.Primary)
		}
		return snapshot.Sources{
			Primary:        primary,
			Orchestration:  fleet,
			Directory:      fleet,
			Virtualization: fleet,
			Telemetry:      fleet,
		}, nil
	}

	// Live mode only carries a broker adapter, so only it can be primary.
	if cfg.Sources.Primary != "orchestration" {
		return snapshot.Sources{}, fmt.Errorf("live mode has no %q adapter; set SOURCES_PRIMARY=orchestration", cfg.Sources.Primary)
	}
	if cfg.Sources.ODataEndpoint == "" {
		return snapshot.Sources{}, fmt.Errorf("live mode requires SOURCES_ODATA_ENDPOINT")
	}
	broker := odata.NewClient(odata.Config{
		Endpoint: cfg.Sources.ODataEndpoint,
		Username: cfg.Sources.ODataUsername,
		Password: cfg.Sources.ODataPassword,
		Timeout:  cfg.Sources.ODataTimeout(),
	})

	sources := snapshot.Sources{
		Primary:       broker,
		Orchestration: broker,
	}

	// The CMDB directory is optional: a failed connection degrades the run
	// rather than blocking it.
	if db, err := database.Connect(cfg.Database); err != nil {
		logg.Warn("CMDB connection failed, directory source disabled", zap.Error(err))
	} else {
		sources.Directory = cmdb.NewDirectory(db)
	}

	return sources, nil
}

// snapshotConfig translates the loaded configuration into pipeline settings.
func snapshotConfig(cfg *config.Config) snapshot.Config {
	return snapshot.Config{
		DeviceFilter:   cfg.Sources.DeviceFilter,
		OrphanFilter:   cfg.Sources.OrphanFilter,
		VMSplitChar:    cfg.Sources.VMSplitChar,
		MaxConcurrency: cfg.Collector.MaxConcurrency,
		TaskTimeout:    cfg.Collector.TaskTimeout(),
	}
}
