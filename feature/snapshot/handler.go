package snapshot

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vdi-inventory/core/logger"
	"vdi-inventory/core/reconcile"
)

// Handler serves the inventory snapshot over HTTP. Runs are expensive, so
// results are cached for a freshness window and concurrent refreshes
// collapse into a single run.
type Handler struct {
	service   *Service
	publisher *Publisher
	logger    *zap.Logger
	ttl       time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	cached    *reconcile.Aggregate
	fetchedAt time.Time
}

// NewHandler creates a snapshot HTTP handler. ttl zero means every request
// triggers a run; a nil publisher disables the published-report routes.
func NewHandler(service *Service, publisher *Publisher, ttl time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, publisher: publisher, logger: log, ttl: ttl}
}

// RegisterRoutes registers the snapshot routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/healthz", h.HandleHealth)
	app.Get("/snapshot.csv", h.HandleGetSnapshotCSV)
	group := app.Group("/snapshot")
	group.Get("/", h.HandleGetSnapshot)
	group.Post("/refresh", h.HandleRefresh)
	group.Get("/reports/:runid", h.HandleListReports)
	group.Get("/reports/:runid/:artifact", h.HandleGetReport)
	group.Delete("/reports/:runid", h.HandleDeleteReports)
}

// current returns the cached aggregate when fresh, otherwise runs the
// pipeline (once, however many requests arrive while it is running).
func (h *Handler) current(ctx context.Context, force bool) (*reconcile.Aggregate, error) {
	if !force {
		h.mu.RLock()
		agg, fetchedAt := h.cached, h.fetchedAt
		h.mu.RUnlock()
		if agg != nil && time.Since(fetchedAt) < h.ttl {
			return agg, nil
		}
	}

	v, err, _ := h.group.Do("run", func() (any, error) {
		agg, err := h.service.Run(ctx)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.cached = agg
		h.fetchedAt = time.Now()
		h.mu.Unlock()
		return agg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*reconcile.Aggregate), nil
}

// HandleGetSnapshot returns the current inventory snapshot.
// @Summary Get Snapshot
// @Description Get the unified inventory snapshot (cached per freshness window).
// @Tags snapshot
// @Produce json
// @Success 200 {object} snapshotDocument "Inventory Snapshot"
// @Failure 502 {object} map[string]string "Primary Source Unavailable"
// @Router /snapshot [get]
func (h *Handler) HandleGetSnapshot(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	agg, err := h.current(c.Context(), false)
	if err != nil {
		l.Error("Snapshot run failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	data, err := RenderJSON(agg)
	if err != nil {
		l.Error("Snapshot render failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// HandleGetSnapshotCSV returns the current snapshot as CSV.
// @Summary Get Snapshot CSV
// @Description Get the unified inventory snapshot flattened to CSV.
// @Tags snapshot
// @Produce text/csv
// @Success 200 {string} string "Inventory CSV"
// @Failure 502 {object} map[string]string "Primary Source Unavailable"
// @Router /snapshot.csv [get]
func (h *Handler) HandleGetSnapshotCSV(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	agg, err := h.current(c.Context(), false)
	if err != nil {
		l.Error("Snapshot run failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	data, err := RenderCSV(agg)
	if err != nil {
		l.Error("Snapshot render failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	return c.Send(data)
}

// HandleRefresh forces a new run regardless of cache freshness.
// @Summary Refresh Snapshot
// @Description Run the inventory pipeline now and replace the cached snapshot.
// @Tags snapshot
// @Produce json
// @Success 200 {object} reconcile.Manifest "Run Manifest"
// @Failure 502 {object} map[string]string "Primary Source Unavailable"
// @Router /snapshot/refresh [post]
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	agg, err := h.current(c.Context(), true)
	if err != nil {
		l.Error("Snapshot refresh failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(agg.Manifest)
}

// HandleListReports lists the artifacts a run published to object storage.
// @Summary List Published Reports
// @Tags snapshot
// @Produce json
// @Param runid path string true "Run ID"
// @Success 200 {object} map[string]any "Artifact Names"
// @Failure 404 {object} map[string]string "Publication Disabled"
// @Router /snapshot/reports/{runid} [get]
func (h *Handler) HandleListReports(c *fiber.Ctx) error {
	if h.publisher == nil {
		return fiber.NewError(fiber.StatusNotFound, "report publication is not configured")
	}
	l := logger.WithRayID(h.logger, c)
	runID := c.Params("runid")

	names, err := h.publisher.ListArtifacts(c.Context(), runID)
	if err != nil {
		l.Error("Report listing failed", zap.String("run_id", runID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"run_id": runID, "artifacts": names})
}

// HandleGetReport streams one published artifact back to the caller.
// @Summary Get Published Report
// @Tags snapshot
// @Produce json
// @Param runid path string true "Run ID"
// @Param artifact path string true "Artifact Name (inventory.json or inventory.csv)"
// @Success 200 {string} string "Artifact Content"
// @Failure 404 {object} map[string]string "Unknown Artifact"
// @Router /snapshot/reports/{runid}/{artifact} [get]
func (h *Handler) HandleGetReport(c *fiber.Ctx) error {
	if h.publisher == nil {
		return fiber.NewError(fiber.StatusNotFound, "report publication is not configured")
	}
	l := logger.WithRayID(h.logger, c)
	runID := c.Params("runid")
	artifact := c.Params("artifact")

	rc, err := h.publisher.GetArtifact(c.Context(), runID, artifact)
	if err != nil {
		l.Error("Report fetch failed",
			zap.String("run_id", runID), zap.String("artifact", artifact), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer rc.Close()

	// Object reads are lazy; a missing key only surfaces here.
	data, err := io.ReadAll(rc)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "no such artifact")
	}

	switch {
	case strings.HasSuffix(artifact, ".json"):
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	case strings.HasSuffix(artifact, ".csv"):
		c.Set(fiber.HeaderContentType, "text/csv")
	}
	return c.Send(data)
}

// HandleDeleteReports removes every artifact a run published.
// @Summary Delete Published Reports
// @Tags snapshot
// @Produce json
// @Param runid path string true "Run ID"
// @Success 200 {object} map[string]any "Removal Count"
// @Failure 404 {object} map[string]string "Publication Disabled"
// @Router /snapshot/reports/{runid} [delete]
func (h *Handler) HandleDeleteReports(c *fiber.Ctx) error {
	if h.publisher == nil {
		return fiber.NewError(fiber.StatusNotFound, "report publication is not configured")
	}
	l := logger.WithRayID(h.logger, c)
	runID := c.Params("runid")

	removed, err := h.publisher.DeleteRun(c.Context(), runID)
	if err != nil {
		l.Error("Report removal failed", zap.String("run_id", runID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"run_id": runID, "removed": removed})
}

// HandleHealth reports process liveness.
// @Summary Health
// @Tags snapshot
// @Produce json
// @Success 200 {object} map[string]string "OK"
// @Router /healthz [get]
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
