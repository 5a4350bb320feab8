package socks5

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressEncodeDecodeIPv4(t *testing.T) {
	addr := Address{Type: AddrIPv4, Host: []byte{192, 168, 1, 1}, Port: 8080}

	encoded, err := addr.Encode(nil)
	require.NoError(t, err)

	decoded, n, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, addr.Equal(decoded))
}

func TestAddressEncodeDecodeIPv6(t *testing.T) {
	addr := Address{Type: AddrIPv6, Host: net.ParseIP("2001:db8::1").To16(), Port: 443}

	encoded, err := addr.Encode(nil)
	require.NoError(t, err)

	decoded, n, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, addr.Equal(decoded))
}

func TestAddressEncodeDecodeDomain(t *testing.T) {
	addr := Address{Type: AddrDomain, Host: []byte("example.com"), Port: 80}

	encoded, err := addr.Encode(nil)
	require.NoError(t, err)
	require.Equal(t, addr.EncodedLen(), len(encoded))

	decoded, n, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, addr.Equal(decoded))
}

func TestAddressEncodeRejectsEmptyDomain(t *testing.T) {
	addr := Address{Type: AddrDomain, Host: nil, Port: 80}
	_, err := addr.Encode(nil)
	require.Error(t, err)
}

func TestAddressEncodeRejectsOversizedDomain(t *testing.T) {
	host := make([]byte, MaxDomainLength+1)
	for i := range host {
		host[i] = 'a'
	}
	addr := Address{Type: AddrDomain, Host: host, Port: 80}
	_, err := addr.Encode(nil)
	require.Error(t, err)
}

func TestDecodeAddressRejectsUnknownType(t *testing.T) {
	_, _, err := DecodeAddress([]byte{0xAB, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeAddressRejectsZeroLengthDomain(t *testing.T) {
	_, _, err := DecodeAddress([]byte{AddrDomain, 0x00})
	require.Error(t, err)
}

func TestDecodeAddressRejectsTruncatedBody(t *testing.T) {
	_, _, err := DecodeAddress([]byte{AddrIPv4, 1, 2, 3})
	require.Error(t, err)
}

func TestAddressFromNetAddrIPv4(t *testing.T) {
	tcpAddr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234}
	addr := AddressFromNetAddr(tcpAddr)
	require.Equal(t, AddrIPv4, addr.Type)
	require.Equal(t, uint16(1234), addr.Port)
}

func TestAddressFromNetAddrInvalid(t *testing.T) {
	addr := AddressFromNetAddr(&net.UnixAddr{Name: "/tmp/x"})
	require.Equal(t, AddrInvalid, addr.Type)
}

func TestDummyAddressIsZeroIPv4(t *testing.T) {
	require.Equal(t, AddrIPv4, DummyAddress.Type)
	require.Equal(t, uint16(0), DummyAddress.Port)
}
