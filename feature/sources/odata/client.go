package odata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
	"vdi-inventory/core/utils"
)

// Config holds the broker Monitor API connection settings.
type Config struct {
	// Endpoint is the Monitor OData base URL, e.g.
	// https://ddc01.corp.local/Citrix/Monitor/OData/v2/Data
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration

	// CacheTTL is how long a fetched machine list stays fresh. The pipeline
	// fans per-device detail calls out concurrently; without the cache each
	// one would re-fetch the full Machines entity.
	CacheTTL time.Duration
}

// Client queries the broker's Monitor OData service. It implements both
// inventory.Orchestration and inventory.Source so it can serve as the
// primary listing source on farms without a provisioning plane.
type Client struct {
	cfg  Config
	http *http.Client

	group     singleflight.Group
	mu        sync.RWMutex
	machines  []inventory.MachineEntry
	fetchedAt time.Time
}

// NewClient builds a broker client from the config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// envelope covers both OData JSON shapes the Monitor service emits:
// v2 wraps rows in d.results, newer endpoints use a bare value array.
type envelope struct {
	D struct {
		Results []map[string]any `json:"results"`
	} `json:"d"`
	Value []map[string]any `json:"value"`
}

func (e *envelope) rows() []map[string]any {
	if len(e.D.Results) > 0 {
		return e.D.Results
	}
	return e.Value
}

func (c *Client) fetch(ctx context.Context, entity string, query url.Values) ([]map[string]any, error) {
	u := strings.TrimRight(c.cfg.Endpoint, "/") + "/" + entity
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build broker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inventory.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s",
			inventory.ErrSourceUnavailable, entity, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", entity, err)
	}
	return env.rows(), nil
}

// provTypeName maps the Monitor ProvisioningType enum to its name. String
// values pass through unchanged.
func provTypeName(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	switch utils.ToInt(v) {
	case 1:
		return "PVS"
	case 2:
		return "MCS"
	default:
		return "Manual"
	}
}

// Name implements inventory.Source.
func (c *Client) Name() string { return "broker" }

// ListDevices implements inventory.Source over the Machines entity.
func (c *Client) ListDevices(ctx context.Context, filter string) ([]identity.Key, error) {
	machines, err := c.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	var keys []identity.Key
	for _, m := range machines {
		if filter != "" && !strings.HasPrefix(m.Identity.ShortName, strings.ToUpper(filter)) {
			continue
		}
		keys = append(keys, m.Identity)
	}
	return keys, nil
}

// GetDeviceDetail implements inventory.Source.
func (c *Client) GetDeviceDetail(ctx context.Context, key identity.Key) (*inventory.PartialRecord, error) {
	machines, err := c.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range machines {
		if m.Identity.Equal(key) {
			group := m.Group
			return &inventory.PartialRecord{
				Identity:      m.Identity,
				Orchestration: &group,
			}, nil
		}
	}
	return nil, inventory.ErrNotFound
}

// ListMachines implements inventory.Orchestration. Machine names arrive as
// DOMAIN\SHORT and go through identity normalization.
func (c *Client) ListMachines(ctx context.Context) ([]inventory.MachineEntry, error) {
	c.mu.RLock()
	machines, fetchedAt := c.machines, c.fetchedAt
	c.mu.RUnlock()
	if !fetchedAt.IsZero() && time.Since(fetchedAt) < c.cfg.CacheTTL {
		return machines, nil
	}

	// Concurrent callers share one fetch; the list is immutable once cached.
	v, err, _ := c.group.Do("machines", func() (any, error) {
		fetched, err := c.fetchMachines(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.machines = fetched
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]inventory.MachineEntry), nil
}

func (c *Client) fetchMachines(ctx context.Context) ([]inventory.MachineEntry, error) {
	query := url.Values{}
	query.Set("$expand", "Catalog,DesktopGroup")

	rows, err := c.fetch(ctx, "Machines", query)
	if err != nil {
		return nil, err
	}

	var machines []inventory.MachineEntry
	for _, row := range rows {
		name := utils.ToString(row["Name"])
		if name == "" {
			continue
		}

		var catalog, provType, deliveryGroup string
		if sub, ok := row["Catalog"].(map[string]any); ok {
			catalog = utils.ToString(sub["Name"])
			provType = provTypeName(sub["ProvisioningType"])
		}
		if sub, ok := row["DesktopGroup"].(map[string]any); ok {
			deliveryGroup = utils.ToString(sub["Name"])
		}

		machines = append(machines, inventory.MachineEntry{
			Identity: identity.Normalize(name, "", ""),
			Catalog:  catalog,
			Group: inventory.OrchestrationGroup{
				Catalog:           catalog,
				ProvisioningType:  provType,
				DeliveryGroup:     deliveryGroup,
				RegistrationState: registrationStateName(row["CurrentRegistrationState"]),
				MaintenanceMode:   utils.ToBool(row["IsInMaintenanceMode"]),
				SessionCount:      utils.ToInt(row["SessionCount"]),
				LoadIndex:         utils.ToInt(row["LoadIndex"]),
				Tags:              splitTags(row["Tags"]),
			},
		})
	}
	return machines, nil
}

// ListCatalogs implements inventory.Orchestration over the Catalogs entity.
func (c *Client) ListCatalogs(ctx context.Context) (map[string]string, error) {
	rows, err := c.fetch(ctx, "Catalogs", nil)
	if err != nil {
		return nil, err
	}

	catalogs := make(map[string]string, len(rows))
	for _, row := range rows {
		name := utils.ToString(row["Name"])
		if name == "" {
			continue
		}
		catalogs[name] = provTypeName(row["ProvisioningType"])
	}
	return catalogs, nil
}

// registrationStateName maps the Monitor registration enum. String values
// pass through.
func registrationStateName(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	switch utils.ToInt(v) {
	case 1:
		return "Registered"
	case 2:
		return "Unregistered"
	default:
		return "Unknown"
	}
}

func splitTags(v any) []string {
	s := utils.ToString(v)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
