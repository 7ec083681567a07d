package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchedulerSettingsFromEnv(t *testing.T) {
	t.Setenv("SCHEDULER_SESSION_TTL", "30m")
	t.Setenv("SCHEDULER_CORE_SUBJECTS", "MATH, ENG ,")
	t.Setenv("SCHEDULER_WEIGHTS", "no_back_to_back=5,room_changes=oops,teacher_idle_gaps=0.5")
	t.Setenv("SCHEDULER_DISABLED_CONSTRAINTS", "room_changes")
	t.Setenv("PERSIST_RETRY_DELAY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.SessionTTL)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.GenerateTimeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.ReaperSpec)
	assert.Equal(t, []string{"MATH", "ENG"}, cfg.Scheduler.CoreSubjects)
	assert.Equal(t, map[string]float64{"no_back_to_back": 5, "teacher_idle_gaps": 0.5}, cfg.Scheduler.Weights)
	assert.Equal(t, []string{"room_changes"}, cfg.Scheduler.Disabled)
	assert.Equal(t, 2*time.Second, cfg.Persistence.RetryDelay)
	assert.False(t, cfg.Persistence.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}
