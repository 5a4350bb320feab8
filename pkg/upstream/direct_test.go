package upstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"socks5d/pkg/socks5"
	"socks5d/pkg/transport"
)

func TestDirectUpstreamConnectsToIPv4Target(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	target := socks5.Address{Type: socks5.AddrIPv4, Host: tcpAddr.IP.To4(), Port: uint16(tcpAddr.Port)}

	u := NewDirectUpstream(transport.NewTCPTransportFactory())
	tr, err := u.Request(context.Background(), target)
	require.NoError(t, err)
	defer tr.Close()

	select {
	case conn := <-accepted:
		defer conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("listener never saw the connection")
	}
}

func TestDirectUpstreamResolvesDomainViaTryConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:18768")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	target := socks5.Address{Type: socks5.AddrDomain, Host: []byte("localhost"), Port: 18768}

	u := NewDirectUpstream(transport.NewTCPTransportFactory())
	tr, err := u.Request(context.Background(), target)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
}

func TestDirectUpstreamRejectsUnknownAddressType(t *testing.T) {
	u := NewDirectUpstream(transport.NewTCPTransportFactory())
	_, err := u.Request(context.Background(), socks5.Address{Type: socks5.AddrInvalid})
	require.Error(t, err)

	var socksErr *socks5.Error
	require.ErrorAs(t, err, &socksErr)
	require.Equal(t, socks5.ErrMalformedPacket, socksErr.Kind)
}
