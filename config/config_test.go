package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDefault_EnablesPeriodicRefresh runs background refresh every five minutes unless configured.
func TestDefault_EnablesPeriodicRefresh(t *testing.T) {
	cfg := Default()
	require.Equal(t, 5*time.Minute, cfg.Prefetch.RefreshInterval)
	require.Equal(t, 2, cfg.Prefetch.LookAhead)
	require.Equal(t, 30*time.Minute, cfg.Prefetch.StaleAfter)
}

// TestLoadConfig_RefreshInterval keeps explicit intervals and lets a negative one disable the run.
func TestLoadConfig_RefreshInterval(t *testing.T) {
	for name, tc := range map[string]struct {
		yaml string
		want time.Duration
	}{
		"omitted":  {yaml: "prefetch:\n  look_ahead: 3\n", want: 5 * time.Minute},
		"explicit": {yaml: "prefetch:\n  refresh_interval: 90s\n", want: 90 * time.Second},
		"disabled": {yaml: "prefetch:\n  refresh_interval: -1s\n", want: -time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "imgcache.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))

			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			require.Equal(t, tc.want, cfg.Prefetch.RefreshInterval)
		})
	}
}
