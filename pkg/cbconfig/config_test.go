package cbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsInvertedPoolBounds(t *testing.T) {
	cfg := Default()
	cfg.Pool.MinSize = 10
	cfg.Pool.MaxSize = 2
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNoServers(t *testing.T) {
	cfg := Default()
	cfg.Servers = nil
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsPollBelowFloor(t *testing.T) {
	cfg := Default()
	cfg.ConfigPollCheckFloor = cfg.ConfigPollInterval + 1
	require.Error(t, cfg.Validate())
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("use_ssl: true\nservers: [\"https://cb1:18091\"]\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.True(t, cfg.UseSsl)
	require.Equal(t, []string{"https://cb1:18091"}, cfg.Servers)
	// Untouched fields keep their defaults.
	require.Equal(t, Default().Pool.MaxSize, cfg.Pool.MaxSize)
}
