package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"socks5d/pkg/socks5"
	"socks5d/pkg/transport"
	"socks5d/pkg/upstream"
)

func TestServerEndToEndConnect(t *testing.T) {
	targetLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer targetLn.Close()

	targetGotData := make(chan []byte, 1)
	go func() {
		conn, err := targetLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		n, _ := conn.Read(buf)
		targetGotData <- buf[:n]
		conn.Write([]byte("world"))
	}()

	up := upstream.NewDirectUpstream(transport.NewTCPTransportFactory())
	srv := New(transport.NewTCPTransportFactory(), up, zerolog.Nop())

	const downstreamAddr = "127.0.0.1:18800"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, downstreamAddr)
	time.Sleep(50 * time.Millisecond)

	clientConn, err := net.Dial("tcp", downstreamAddr)
	require.NoError(t, err)
	defer clientConn.Close()

	adapter := &netConnAdapter{conn: clientConn}
	require.NoError(t, socks5.WriteAuthMethodList(context.Background(), adapter, []byte{socks5.MethodNoAuth}))
	sel, err := socks5.ReadAuthSelect(context.Background(), adapter)
	require.NoError(t, err)
	require.Equal(t, byte(socks5.MethodNoAuth), sel.Method)

	targetAddr := targetLn.Addr().(*net.TCPAddr)
	req := socks5.Request{
		Header:  socks5.RequestHeader{Command: socks5.CmdConnect},
		Address: socks5.Address{Type: socks5.AddrIPv4, Host: targetAddr.IP.To4(), Port: uint16(targetAddr.Port)},
	}
	require.NoError(t, socks5.WriteRequest(context.Background(), adapter, req))

	resp, err := socks5.ReadResponse(context.Background(), adapter)
	require.NoError(t, err)
	require.Equal(t, socks5.RepSuccess, resp.Header.ReplyCode)

	_, err = clientConn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-targetGotData:
		require.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("target never received forwarded data")
	}

	buf := make([]byte, 5)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = adapter.Read(context.Background(), buf, false)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf))
}

func TestServerSessionsSnapshot(t *testing.T) {
	up := upstream.NewDirectUpstream(transport.NewTCPTransportFactory())
	srv := New(transport.NewTCPTransportFactory(), up, zerolog.Nop())
	require.Empty(t, srv.Sessions())
}
