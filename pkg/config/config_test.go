package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		role Role
		port int
	}{
		{RoleFacade, 3000},
		{RoleOrchestrator, 3001},
		{RoleDiscovery, 3002},
		{RoleAnalysis, 3003},
		{RoleRelationship, 3004},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			cfg, err := Load(tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.port, cfg.Port)
			assert.Equal(t, 30*time.Second, cfg.Timeout)
			assert.Equal(t, 3, cfg.MaxRetries)
			assert.Equal(t, 10, cfg.MaxSockets)
			assert.Equal(t, 5*time.Minute, cfg.AgentCardCacheTTL)
			assert.Equal(t, 2*time.Minute, cfg.StaleAfter)
			assert.True(t, cfg.KeepAlive)
		})
	}
}

func TestLoadUnknownRole(t *testing.T) {
	_, err := Load(Role("reticulator"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AGENTMESH_PORT", "4100")
	t.Setenv("AGENTMESH_MAX_RETRIES", "5")
	t.Setenv("AGENTMESH_RETRY_DELAY", "250")
	t.Setenv("AGENTMESH_TIMEOUT", "10s")

	cfg, err := Load(RoleDiscovery)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "http://localhost:4100", cfg.BaseURL)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(RoleAnalysis)
	require.NoError(t, err)

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 3003
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AGENTMESH_TEST_ORG", "cortside")

	assert.Equal(t, "cortside", ExpandEnvVars("${AGENTMESH_TEST_ORG}"))
	assert.Equal(t, "cortside", ExpandEnvVars("$AGENTMESH_TEST_ORG"))
	assert.Equal(t, "cortside", ExpandEnvVars("${AGENTMESH_TEST_ORG:-fallback}"))
	assert.Equal(t, "fallback", ExpandEnvVars("${AGENTMESH_UNSET_VAR:-fallback}"))
	assert.Equal(t, "plain", ExpandEnvVars("plain"))
}
