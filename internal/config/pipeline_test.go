package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsPopulatePipelineSections(t *testing.T) {
	content := "wallet:\n  private_key_env: WALLET_PRIVATE_KEY\n"
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	m, err := NewManager(configPath)
	require.NoError(t, err)

	breakerCfg := m.GetBreakerConfig()
	assert.Equal(t, 5, breakerCfg.ConsecutiveFailureThreshold)
	assert.Equal(t, 120*time.Second, breakerCfg.CooldownPeriod)

	queueCfg := m.GetQueueConfig()
	assert.Equal(t, 500, queueCfg.Capacity)
	assert.Equal(t, 80.0, queueCfg.SpearShedThresholdPercent)

	recoveryCfg := m.GetRecoveryConfig()
	assert.Equal(t, 30*time.Second, recoveryCfg.Interval)
	assert.Equal(t, 3, recoveryCfg.MaxIndeterminate)

	engineCfg := m.GetEngineConfig()
	assert.EqualValues(t, 8, engineCfg.MaxConcurrentExecutions)

	tipCfg := m.GetTipConfig()
	assert.True(t, tipCfg.StandardTipSOL.IsPositive())
}

func TestYAMLOverridesPipelineDefaults(t *testing.T) {
	content := `
circuit_breaker:
  consecutive_failure_threshold: 10
  cooldown_seconds: 60
queue:
  capacity: 1000
  spear_shed_threshold_percent: 90
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	m, err := NewManager(configPath)
	require.NoError(t, err)

	breakerCfg := m.GetBreakerConfig()
	assert.Equal(t, 10, breakerCfg.ConsecutiveFailureThreshold)
	assert.Equal(t, 60*time.Second, breakerCfg.CooldownPeriod)

	queueCfg := m.GetQueueConfig()
	assert.Equal(t, 1000, queueCfg.Capacity)
	assert.Equal(t, 90.0, queueCfg.SpearShedThresholdPercent)
}
