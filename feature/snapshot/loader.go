package snapshot

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the snapshot feature. publisher may be nil when report
// publication is not configured.
func NewFeature(sources Sources, cfg Config, ttl time.Duration, publisher *Publisher, logger *zap.Logger) *Feature {
	svc := NewService(sources, cfg, logger)
	h := NewHandler(svc, publisher, ttl, logger)
	return &Feature{service: svc, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "snapshot"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
