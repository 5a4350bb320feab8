package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	base
	localAddr net.Addr
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{localAddr: &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9999}}
	t.base = newBase(func() error { return nil })
	return t
}

func (f *fakeTransport) Read(ctx context.Context, buf []byte, allowShort bool) (int, error) {
	return 0, nil
}
func (f *fakeTransport) Write(ctx context.Context, buf []byte) (int, error) { return len(buf), nil }
func (f *fakeTransport) LocalAddr() net.Addr                                { return f.localAddr }
func (f *fakeTransport) CloseWrite() error                                  { return nil }

func TestWrapOverridesLocalAddr(t *testing.T) {
	inner := newFakeTransport()
	override := &net.TCPAddr{IP: net.ParseIP("198.51.100.7"), Port: 1080}

	wrapped := Wrap(inner, override)
	require.Equal(t, override, wrapped.LocalAddr())
	require.Equal(t, inner.ID(), wrapped.ID())

	n, err := wrapped.Write(context.Background(), []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
