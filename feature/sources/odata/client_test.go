package odata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vdi-inventory/core/identity"
	"vdi-inventory/core/inventory"
)

const machinesV2 = `{"d":{"results":[
	{"Name":"CORP\\VDI001","CurrentRegistrationState":1,"IsInMaintenanceMode":false,
	 "SessionCount":2,"LoadIndex":4100,"Tags":"gold, pilot",
	 "Catalog":{"Name":"Win10-PVS-1","ProvisioningType":1},
	 "DesktopGroup":{"Name":"Desktops-1"}},
	{"Name":"CORP\\VDI002","CurrentRegistrationState":2,"IsInMaintenanceMode":true,
	 "SessionCount":0,"LoadIndex":0,
	 "Catalog":{"Name":"Win10-MCS-1","ProvisioningType":2},
	 "DesktopGroup":{"Name":"Desktops-2"}}
]}}`

const catalogsValue = `{"value":[
	{"Name":"Win10-PVS-1","ProvisioningType":"PVS"},
	{"Name":"Win10-MCS-1","ProvisioningType":2}
]}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc-monitor" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/Machines":
			_, _ = w.Write([]byte(machinesV2))
		case r.URL.Path == "/Catalogs":
			_, _ = w.Write([]byte(catalogsValue))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		Endpoint: srv.URL,
		Username: "svc-monitor",
		Password: "secret",
		Timeout:  5 * time.Second,
	})
}

func TestClient_ListMachines(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	machines, err := newTestClient(srv).ListMachines(context.Background())
	require.NoError(t, err)
	require.Len(t, machines, 2)

	first := machines[0]
	assert.Equal(t, identity.Key{ShortName: "VDI001", Domain: "CORP"}, first.Identity)
	assert.Equal(t, "Win10-PVS-1", first.Catalog)
	assert.Equal(t, "PVS", first.Group.ProvisioningType)
	assert.Equal(t, "Registered", first.Group.RegistrationState)
	assert.Equal(t, 2, first.Group.SessionCount)
	assert.Equal(t, []string{"gold", "pilot"}, first.Group.Tags)

	second := machines[1]
	assert.Equal(t, "MCS", second.Group.ProvisioningType)
	assert.Equal(t, "Unregistered", second.Group.RegistrationState)
	assert.True(t, second.Group.MaintenanceMode)
}

func TestClient_ListCatalogsMixedEnvelope(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	catalogs, err := newTestClient(srv).ListCatalogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Win10-PVS-1": "PVS",
		"Win10-MCS-1": "MCS",
	}, catalogs)
}

func TestClient_SourceContract(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	keys, err := c.ListDevices(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = c.ListDevices(context.Background(), "vdi002")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "VDI002", keys[0].ShortName)

	rec, err := c.GetDeviceDetail(context.Background(), keys[0])
	require.NoError(t, err)
	require.NotNil(t, rec.Orchestration)
	assert.Equal(t, "Desktops-2", rec.Orchestration.DeliveryGroup)

	_, err = c.GetDeviceDetail(context.Background(), identity.Key{ShortName: "NOSUCH"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestClient_MachineListFetchedOncePerCacheWindow(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Machines" {
			atomic.AddInt32(&fetches, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(machinesV2))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, CacheTTL: time.Minute})
	ctx := context.Background()

	keys, err := c.ListDevices(ctx, "")
	require.NoError(t, err)
	for _, key := range keys {
		_, err := c.GetDeviceDetail(ctx, key)
		require.NoError(t, err)
	}
	_, err = c.ListMachines(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestClient_BadCredentialsUnavailable(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Username: "svc-monitor", Password: "wrong"})
	_, err := c.ListMachines(context.Background())
	assert.ErrorIs(t, err, inventory.ErrSourceUnavailable)
}

func TestClient_ServerDownUnavailable(t *testing.T) {
	srv := newTestServer(t)
	srv.Close()

	_, err := newTestClient(srv).ListMachines(context.Background())
	assert.ErrorIs(t, err, inventory.ErrSourceUnavailable)
}
