package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"vdi-inventory/core/reconcile"
	"vdi-inventory/core/storage"
)

// snapshotDocument is the JSON artifact shape: the manifest first, then the
// records in canonical order.
type snapshotDocument struct {
	Manifest reconcile.Manifest        `json:"manifest"`
	Devices  []*reconcile.DeviceRecord `json:"devices"`
}

// RenderJSON serializes an aggregate into the report JSON document.
func RenderJSON(agg *reconcile.Aggregate) ([]byte, error) {
	doc := snapshotDocument{
		Manifest: agg.Manifest,
		Devices:  agg.Sorted(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

var csvHeader = []string{
	"device", "domain", "orphan", "provenance",
	"disk_name", "store", "site", "collection",
	"catalog", "provisioning_type", "delivery_group", "registration_state", "session_count",
	"vcpus", "memory_mb", "power_state", "host",
	"ad_description", "ad_last_logon",
	"telemetry_state", "boot_time", "free_memory_pct", "domain_trust_ok",
}

// RenderCSV flattens an aggregate into the operator-facing CSV artifact.
// Missing groups render as empty cells.
func RenderCSV(agg *reconcile.Aggregate) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, rec := range agg.Sorted() {
		row := make([]string, 0, len(csvHeader))
		row = append(row,
			rec.Identity.ShortName,
			rec.Identity.Domain,
			strconv.FormatBool(rec.Orphan),
			rec.Provenance,
		)
		if p := rec.Provisioning; p != nil {
			row = append(row, p.DiskName, p.Store, p.Site, p.Collection)
		} else {
			row = append(row, "", "", "", "")
		}
		if o := rec.Orchestration; o != nil {
			row = append(row, o.Catalog, o.ProvisioningType, o.DeliveryGroup,
				o.RegistrationState, strconv.Itoa(o.SessionCount))
		} else {
			row = append(row, "", "", "", "", "")
		}
		if v := rec.Virtualization; v != nil {
			row = append(row, strconv.Itoa(v.VCPUs), strconv.FormatInt(v.MemoryMB, 10),
				v.PowerState, v.Host)
		} else {
			row = append(row, "", "", "", "")
		}
		if d := rec.Directory; d != nil {
			row = append(row, d.Description, d.LastLogon.UTC().Format("2006-01-02T15:04:05Z"))
		} else {
			row = append(row, "", "")
		}
		row = append(row, string(rec.TelemetryState))
		if t := rec.Telemetry; t != nil {
			row = append(row,
				t.BootTime.UTC().Format("2006-01-02T15:04:05Z"),
				strconv.FormatFloat(t.FreeMemoryPct, 'f', 1, 64),
				strconv.FormatBool(t.DomainTrustOK),
			)
		} else {
			row = append(row, "", "", "")
		}

		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteLocal renders both artifacts into dir, named after the run ID.
func WriteLocal(agg *reconcile.Aggregate, dir string) ([]string, error) {
	jsonData, err := RenderJSON(agg)
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	csvData, err := RenderCSV(agg)
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}

	var written []string
	for name, data := range map[string][]byte{
		"inventory-" + agg.Manifest.RunID + ".json": jsonData,
		"inventory-" + agg.Manifest.RunID + ".csv":  csvData,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

// Publisher uploads run artifacts to object storage.
type Publisher struct {
	client storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a publisher targeting bucket with an object key
// prefix.
func NewPublisher(client storage.Client, bucket, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Publish renders the aggregate and uploads both artifacts under
// <prefix>/<run-id>/. The bucket is created on first use.
func (p *Publisher) Publish(ctx context.Context, agg *reconcile.Aggregate) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}

	jsonData, err := RenderJSON(agg)
	if err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	csvData, err := RenderCSV(agg)
	if err != nil {
		return fmt.Errorf("render csv: %w", err)
	}

	artifacts := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{"inventory.json", jsonData, "application/json"},
		{"inventory.csv", csvData, "text/csv"},
	}
	for _, a := range artifacts {
		key := p.prefix + "/" + agg.Manifest.RunID + "/" + a.name
		_, err := p.client.PutObject(ctx, p.bucket, key,
			bytes.NewReader(a.data), int64(len(a.data)),
			minio.PutObjectOptions{ContentType: a.contentType})
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		p.logger.Info("Artifact published",
			zap.String("bucket", p.bucket), zap.String("key", key), zap.Int("bytes", len(a.data)))
	}
	return nil
}

// ListArtifacts returns the artifact names one run published, in stable
// order. An unknown run ID yields an empty list, not an error.
func (p *Publisher) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	keyPrefix := p.prefix + "/" + runID + "/"
	var names []string
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    keyPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", keyPrefix, obj.Err)
		}
		names = append(names, strings.TrimPrefix(obj.Key, keyPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// GetArtifact reads back one published artifact. The caller closes the
// reader.
func (p *Publisher) GetArtifact(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	key := p.prefix + "/" + runID + "/" + name
	rc, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return rc, nil
}

// DeleteRun removes every artifact a run published and reports how many.
func (p *Publisher) DeleteRun(ctx context.Context, runID string) (int, error) {
	names, err := p.ListArtifacts(ctx, runID)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		key := p.prefix + "/" + runID + "/" + name
		if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return 0, fmt.Errorf("remove %s: %w", key, err)
		}
		p.logger.Info("Artifact removed",
			zap.String("bucket", p.bucket), zap.String("key", key))
	}
	return len(names), nil
}
