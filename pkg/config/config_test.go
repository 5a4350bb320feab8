package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDirectUpstream(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": "127.0.0.1:1080", "upstream": "direct"}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1080", cfg.ListenAddr)
	require.Equal(t, UpstreamDirect, cfg.Upstream)
}

func TestLoadConfigSocksUpstreamRequiresRelay(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": "127.0.0.1:1080", "upstream": "socks"}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigSocksUpstreamComplete(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": "127.0.0.1:1080",
		"upstream": "socks",
		"relay_host": "relay.internal",
		"relay_port": 1080
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "relay.internal", cfg.RelayHost)
	require.Equal(t, uint16(1080), cfg.RelayPort)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	require.Error(t, err)
}

func TestLoadConfigMissingListenAddr(t *testing.T) {
	path := writeConfig(t, `{"upstream": "direct"}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigUnknownUpstreamMode(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": "127.0.0.1:1080", "upstream": "bogus"}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestHandshakeTimeoutConversion(t *testing.T) {
	cfg := &Config{HandshakeTimeoutSeconds: 5}
	require.Equal(t, int64(5), cfg.HandshakeTimeout().Milliseconds()/1000)
}
