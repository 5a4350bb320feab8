// Package config loads and validates the proxy's JSON configuration file,
// grounded on the teacher's LoadConfig/Validate pair in cmd/proxy/main.go,
// generalized from Azure Storage credentials to this module's downstream
// listener, upstream mode, and TLS options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// UpstreamMode selects how CONNECT targets are resolved.
type UpstreamMode string

const (
	// UpstreamDirect dials the client's requested target directly.
	UpstreamDirect UpstreamMode = "direct"
	// UpstreamSocks relays through another SOCKS5 server.
	UpstreamSocks UpstreamMode = "socks"
)

// TLSConfig holds the subset of the TLSConfigBuilder options from spec §6
// that can be populated straight out of the JSON file. It has no fields for
// load_cert, load_dh_params or set_verify_depth.
type TLSConfig struct {
	CAPath     string `json:"ca_path,omitempty"`
	CAFile     string `json:"ca_file,omitempty"`
	CertChain  string `json:"cert_chain,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	VerifyPeer bool   `json:"verify_peer,omitempty"`
	VerifyHost string `json:"verify_host,omitempty"`
}

// Config is the top-level JSON document read from disk.
type Config struct {
	// ListenAddr is the downstream SOCKS5 listen address, e.g. "127.0.0.1:1080".
	ListenAddr string `json:"listen_addr"`

	// DownstreamTLS enables TLS on the downstream listener when non-nil.
	DownstreamTLS *TLSConfig `json:"downstream_tls,omitempty"`

	// Upstream selects direct dialing or relaying through another SOCKS5
	// server.
	Upstream UpstreamMode `json:"upstream"`

	// RelayHost/RelayPort are required when Upstream is "socks".
	RelayHost string `json:"relay_host,omitempty"`
	RelayPort uint16 `json:"relay_port,omitempty"`

	// UpstreamTLS enables TLS on the connection to the relay when Upstream
	// is "socks" and this is non-nil.
	UpstreamTLS *TLSConfig `json:"upstream_tls,omitempty"`

	// HandshakeTimeoutSeconds bounds the SOCKS5 handshake; zero disables
	// the deadline.
	HandshakeTimeoutSeconds int `json:"handshake_timeout_seconds,omitempty"`
}

// HandshakeTimeout returns HandshakeTimeoutSeconds as a time.Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses the config file at configPath, defaulting to
// ./config.json when configPath is empty.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "./config.json"
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %v", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found at %s", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", absPath, err)
	}

	cfg := new(Config)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required config fields.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.Upstream {
	case UpstreamDirect:
	case UpstreamSocks:
		if c.RelayHost == "" {
			return fmt.Errorf("relay_host is required when upstream is \"socks\"")
		}
		if c.RelayPort == 0 {
			return fmt.Errorf("relay_port is required when upstream is \"socks\"")
		}
	case "":
		return fmt.Errorf("upstream is required (\"direct\" or \"socks\")")
	default:
		return fmt.Errorf("unknown upstream mode %q", c.Upstream)
	}

	return nil
}
