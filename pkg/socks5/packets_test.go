package socks5

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memConn is a minimal reader/writer backed by an in-memory buffer, used to
// exercise the packet codecs without a real Transport.
type memConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newMemConn(data []byte) *memConn {
	return &memConn{in: bytes.NewBuffer(data), out: &bytes.Buffer{}}
}

func (m *memConn) Read(ctx context.Context, buf []byte, allowShort bool) (int, error) {
	if allowShort {
		return m.in.Read(buf)
	}
	return io.ReadFull(m.in, buf)
}

func (m *memConn) Write(ctx context.Context, buf []byte) (int, error) {
	return m.out.Write(buf)
}

func TestReadAuthMethodListOK(t *testing.T) {
	conn := newMemConn([]byte{Version, 2, MethodNoAuth, MethodGSSAPI})
	methods, err := ReadAuthMethodList(context.Background(), conn)
	require.NoError(t, err)
	require.True(t, methods.Has(MethodNoAuth))
	require.True(t, methods.Has(MethodGSSAPI))
	require.False(t, methods.Has(MethodUsernamePassword))
}

func TestReadAuthMethodListRejectsBadVersion(t *testing.T) {
	conn := newMemConn([]byte{0x04, 1, MethodNoAuth})
	_, err := ReadAuthMethodList(context.Background(), conn)
	require.Error(t, err)
}

func TestReadAuthMethodListRejectsZeroMethods(t *testing.T) {
	conn := newMemConn([]byte{Version, 0})
	_, err := ReadAuthMethodList(context.Background(), conn)
	require.Error(t, err)
}

func TestWriteReadAuthSelectRoundTrip(t *testing.T) {
	conn := newMemConn(nil)
	require.NoError(t, WriteAuthSelect(context.Background(), conn, MethodNoAuth))

	readBack := newMemConn(conn.out.Bytes())
	sel, err := ReadAuthSelect(context.Background(), readBack)
	require.NoError(t, err)
	require.Equal(t, byte(MethodNoAuth), sel.Method)
}

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	req := Request{
		Header:  RequestHeader{Command: CmdConnect},
		Address: Address{Type: AddrDomain, Host: []byte("example.com"), Port: 443},
	}

	conn := newMemConn(nil)
	require.NoError(t, WriteRequest(context.Background(), conn, req))

	readBack := newMemConn(conn.out.Bytes())
	decoded, err := ReadRequest(context.Background(), readBack)
	require.NoError(t, err)
	require.Equal(t, req.Header.Command, decoded.Header.Command)
	require.True(t, req.Address.Equal(decoded.Address))
}

func TestReadRequestRejectsUnknownCommand(t *testing.T) {
	conn := newMemConn([]byte{Version, 0x04, 0x00})
	_, err := ReadRequest(context.Background(), conn)
	require.Error(t, err)
}

func TestResponseEncodeDecodeRoundTrip(t *testing.T) {
	resp := Response{
		Header:  ResponseHeader{ReplyCode: RepSuccess},
		Address: Address{Type: AddrIPv4, Host: []byte{1, 2, 3, 4}, Port: 80},
	}

	conn := newMemConn(nil)
	require.NoError(t, WriteResponse(context.Background(), conn, resp))

	readBack := newMemConn(conn.out.Bytes())
	decoded, err := ReadResponse(context.Background(), readBack)
	require.NoError(t, err)
	require.Equal(t, resp.Header.ReplyCode, decoded.Header.ReplyCode)
	require.True(t, resp.Address.Equal(decoded.Address))
}

func TestReadRequestRejectsTruncatedAddress(t *testing.T) {
	conn := newMemConn([]byte{Version, CmdConnect, 0x00, AddrIPv4, 1, 2})
	_, err := ReadRequest(context.Background(), conn)
	require.Error(t, err)
}
