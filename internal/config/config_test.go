package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-workflow", cfg.Service.Name)
	assert.Equal(t, DefaultEnvironment, cfg.Service.Environment)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultApprovalTTL, cfg.Workflow.ApprovalTTL)
	assert.Equal(t, DefaultSweepInterval, cfg.Workflow.SweepInterval)
	assert.Equal(t, DefaultReminderInterval, cfg.Workflow.ReminderInterval)
	assert.Equal(t, DefaultSuspiciousThreshold, cfg.Workflow.SuspiciousThreshold)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APPROVAL_TTL", "48h")
	t.Setenv("OWNER_USER_IDS", "owner1, owner2,")
	t.Setenv("DB_NAME", "workflow_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Workflow.ApprovalTTL)
	assert.Equal(t, []string{"owner1", "owner2"}, cfg.Workflow.OwnerUserIDs)
	assert.Equal(t, "workflow_test", cfg.Database.Database)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: custom-workflow
server:
  port: 7000
workflow:
  approval_ttl: 12h
  suspicious_threshold: 50
`), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "custom-workflow", cfg.Service.Name)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Workflow.ApprovalTTL)
	assert.Equal(t, 50, cfg.Workflow.SuspiciousThreshold)
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"non-positive approval TTL", "APPROVAL_TTL", "-1h"},
		{"non-positive sweep interval", "SWEEP_INTERVAL", "0s"},
		{"threshold below one", "SUSPICIOUS_THRESHOLD", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}
