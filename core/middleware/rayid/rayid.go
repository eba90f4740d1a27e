package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderName carries the ray ID on requests and responses.
const HeaderName = "X-Ray-Id"

// New returns a middleware that assigns every request a ray ID for log
// correlation. An ID supplied by the caller is kept so upstream systems can
// trace through.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderName)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals("ray_id", rid)
		c.Set(HeaderName, rid)
		return c.Next()
	}
}
