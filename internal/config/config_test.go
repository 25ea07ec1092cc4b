package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("studio")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "studio", cfg.Team.Name)
	assert.Equal(t, "estimate", cfg.Policies.Capacity.Increment)
	assert.Equal(t, "reject", cfg.Policies.Assignment.Reassign)
	assert.Equal(t, "Design Approved.", cfg.Policies.Lifecycle.ApprovalMessage)
	assert.True(t, cfg.Policies.Lifecycle.ReopenCompleted)
	assert.Equal(t, 14, cfg.Timeline.Days)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout())
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("policies:\n  assignment:\n    reassign: move\n"))
	require.NoError(t, err)
	assert.Equal(t, "move", cfg.Policies.Assignment.Reassign)
	assert.Equal(t, "estimate", cfg.Policies.Capacity.Increment)
	assert.Equal(t, "sunday", cfg.Timeline.WeekStart)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"increment":  "policies:\n  capacity:\n    increment: double\n",
		"flat hours": "policies:\n  capacity:\n    increment: flat\n    flat_hours: 0\n",
		"reassign":   "policies:\n  assignment:\n    reassign: swap\n",
		"days":       "timeline:\n  days: 0\n",
		"min width":  "timeline:\n  min_width: 2\n",
		"weekday":    "timeline:\n  week_start: someday\n",
		"provider":   "oracle:\n  provider: other\n",
		"webhook":    "webhooks:\n  - events: [request.assigned]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "design", cfg.Team.Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "designflow.yml"), []byte(GenerateDefault("brand")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "brand", cfg.Team.Name)
}

func TestOracleAPIKeyFromEnv(t *testing.T) {
	t.Setenv("DESIGNFLOW_TEST_KEY", "  sk-test  ")
	o := OracleConfig{APIKeyEnv: "DESIGNFLOW_TEST_KEY"}
	assert.Equal(t, "sk-test", o.APIKey())
	assert.Empty(t, OracleConfig{}.APIKey())
}
