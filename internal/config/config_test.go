package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"VISION_PORT", "VISION_P2P_PORT", "VISION_DATA_DIR", "VISION_MEMPOOL_MAX",
		"VISION_MIN_PEERS", "VISION_BOOTSTRAP_PEERS",
	} {
		os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.HTTPPort)
	require.Equal(t, 7072, cfg.P2PPort)
	require.Equal(t, 10_000, cfg.MempoolMax)
	require.Equal(t, 2, cfg.MinPeers)
	require.False(t, cfg.AllowBootstrapAlone)
	require.Equal(t, 5, cfg.ReadinessCheckInterval)
	require.Equal(t, 0, cfg.ReadinessMaxWait)
}

func TestFromEnvRejectsInvalidReadinessCheckInterval(t *testing.T) {
	t.Setenv("VISION_READINESS_CHECK_INTERVAL", "0")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvParsesBootstrapPeers(t *testing.T) {
	t.Setenv("VISION_BOOTSTRAP_PEERS", "1.2.3.4:7072, 5.6.7.8:7072 ,")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.3.4:7072", "5.6.7.8:7072"}, cfg.BootstrapPeers)
}

func TestFromEnvRejectsInvalidMempoolMax(t *testing.T) {
	t.Setenv("VISION_MEMPOOL_MAX", "0")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestLoadStaticConfigMissingFileIsNotError(t *testing.T) {
	sc, err := LoadStaticConfig("/no/such/file.toml")
	require.NoError(t, err)
	require.Empty(t, sc.ChainID)
}
