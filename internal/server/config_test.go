package server

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	require.Equal(t, ":12345", cfg.Addr)
	require.Equal(t, 64, cfg.MaxWorkers)
	require.Equal(t, 1024, cfg.QueueCapacity)
	require.Equal(t, 64*1024, cfg.MaxLineBytes)
	require.Equal(t, 65535, cfg.MaxPayloadBytes)
	require.Equal(t, 10_000, cfg.MaxCommandsPerConn)
	require.Equal(t, 60*time.Second, cfg.ClientReadTimeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BLOCKVAULT_ADDR", ":9999")
	t.Setenv("BLOCKVAULT_MAX_WORKERS", "8")

	v := viper.New()
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 8, cfg.MaxWorkers)
}
