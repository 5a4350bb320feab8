package transport

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTLSConfigBuilderDefaults(t *testing.T) {
	b := NewTLSConfigBuilder()
	cfg, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, uint16(tls.VersionTLS11), cfg.MinVersion)
	require.True(t, cfg.InsecureSkipVerify)
}

func TestTLSConfigBuilderRejectsSecondBuild(t *testing.T) {
	b := NewTLSConfigBuilder()
	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	require.Error(t, err)
}

func TestTLSConfigBuilderRejectsOptionAfterBuild(t *testing.T) {
	b := NewTLSConfigBuilder()
	_, err := b.Build()
	require.NoError(t, err)

	err = b.SetVerifyHost("example.com")
	require.Error(t, err)
}

func TestTLSConfigBuilderVerifyPeerEnablesClientAuth(t *testing.T) {
	b := NewTLSConfigBuilder()
	require.NoError(t, b.SetVerifyPeer(true))

	cfg, err := b.Build()
	require.NoError(t, err)
	require.False(t, cfg.InsecureSkipVerify)
	require.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestTLSConfigBuilderSessionTicketKeySeedIsDeterministic(t *testing.T) {
	b1 := NewTLSConfigBuilder()
	require.NoError(t, b1.SetSessionTicketKeySeed([]byte("shared-seed")))
	cfg1, err := b1.Build()
	require.NoError(t, err)

	b2 := NewTLSConfigBuilder()
	require.NoError(t, b2.SetSessionTicketKeySeed([]byte("shared-seed")))
	cfg2, err := b2.Build()
	require.NoError(t, err)

	require.Equal(t, cfg1.SessionTicketKey, cfg2.SessionTicketKey)
}
