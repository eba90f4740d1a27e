package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"vdi-inventory/core/config"
	"vdi-inventory/core/database"
	"vdi-inventory/core/logger"
	"vdi-inventory/core/storage"
	"vdi-inventory/feature/sources/cmdb"
	"vdi-inventory/feature/sources/odata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// doctorCmd checks connectivity to every configured backend.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to every configured source and backend",
	Long: `Probes each configured backend with a short deadline and reports
what a real run would be able to reach: the broker OData service, the CMDB
directory table, and the object storage bucket.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	failures := 0
	check := func(name string, err error) {
		if err != nil {
			failures++
			logg.Error("Check failed", zap.String("check", name), zap.Error(err))
			return
		}
		logg.Info("Check passed", zap.String("check", name))
	}

	if cfg.Sources.Mode == "fake" {
		logg.Info("Fake mode configured, no live sources to check")
	} else {
		check("broker", checkBroker(ctx, cfg))
		check("cmdb", checkCMDB(cfg))
	}

	if cfg.Report.Upload {
		check("storage", checkStorage(ctx, cfg))
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	return nil
}

func checkBroker(ctx context.Context, cfg *config.Config) error {
	if cfg.Sources.ODataEndpoint == "" {
		return fmt.Errorf("SOURCES_ODATA_ENDPOINT is not set")
	}
	broker := odata.NewClient(odata.Config{
		Endpoint: cfg.Sources.ODataEndpoint,
		Username: cfg.Sources.ODataUsername,
		Password: cfg.Sources.ODataPassword,
		Timeout:  cfg.Sources.ODataTimeout(),
	})
	catalogs, err := broker.ListCatalogs(ctx)
	if err != nil {
		return err
	}
	if len(catalogs) == 0 {
		return fmt.Errorf("broker answered but reported no catalogs")
	}
	return nil
}

func checkCMDB(cfg *config.Config) error {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	missing, err := database.VerifyTable(db, cmdb.TableName, cmdb.RequiredColumns)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %v", cmdb.TableName, missing)
	}
	return nil
}

func checkStorage(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return err
	}
	exists, err := store.BucketExists(ctx, cfg.Storage.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist (it will be created on first publish)", cfg.Storage.Bucket)
	}
	return nil
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
