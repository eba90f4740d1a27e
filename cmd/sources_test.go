package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vdi-inventory/core/config"
)

func fakeModeConfig(primary string) *config.Config {
	cfg := &config.Config{}
	cfg.Sources.Mode = "fake"
	cfg.Sources.Primary = primary
	cfg.Sources.FakeFleetSize = 5
	return cfg
}

func TestBuildSources_PrimarySelectsProvisioning(t *testing.T) {
	sources, err := buildSources(fakeModeConfig("provisioning"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "pvs", sources.Primary.Name())
}

func TestBuildSources_PrimarySelectsOrchestration(t *testing.T) {
	sources, err := buildSources(fakeModeConfig("orchestration"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "broker", sources.Primary.Name())
}

func TestBuildSources_UnknownPrimaryRejected(t *testing.T) {
	_, err := buildSources(fakeModeConfig("hypervisor"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.primary")
}

func TestBuildSources_LiveModeRequiresOrchestrationPrimary(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sources.Mode = "live"
	cfg.Sources.Primary = "provisioning"
	cfg.Sources.ODataEndpoint = "https://ddc01.corp.local/Citrix/Monitor/OData/v2/Data"

	_, err := buildSources(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCES_PRIMARY=orchestration")
}
