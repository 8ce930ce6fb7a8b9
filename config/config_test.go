package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.GreaterOrEqual(t, cfg.WorkerThreads, 1)
	require.Equal(t, 2, cfg.LogicThreads)
	require.Equal(t, 20*time.Millisecond, cfg.FixedStep())
	require.Equal(t, time.Duration(16.66*float64(time.Millisecond)), cfg.FrameBudget())
	require.Equal(t, time.Second, cfg.ReconnectInterval())
	require.Equal(t, 100.0, cfg.AOICellSize)
	require.Equal(t, 10.0, cfg.AOIHysteresis)
	require.Equal(t, 10000, cfg.MaxSessions)
	require.Equal(t, time.Minute, cfg.IdleTimeout())
}

func TestFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamecore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"logic_threads: 4\nfixed_time_step_ms: 10\naoi_cell_size: 50\naoi_hysteresis: 5\n"),
		0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.LogicThreads)
	require.Equal(t, 10*time.Millisecond, cfg.FixedStep())
	require.Equal(t, 50.0, cfg.AOICellSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero logic threads", "logic_threads: 0\n"},
		{"negative fixed step", "fixed_time_step_ms: -5\n"},
		{"hysteresis too wide", "aoi_cell_size: 10\naoi_hysteresis: 5\n"},
		{"zero sessions", "max_sessions: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
