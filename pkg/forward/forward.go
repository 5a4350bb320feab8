// Package forward implements the bidirectional byte-pump between a
// downstream client Transport and the upstream Transport, grounded on
// spec §4.G's Forwarder and on the half-close propagation the teacher's
// protocol.Connection read/write loops perform over a single multiplexed
// stream (pkg/protocol/connection.go), generalized here to two independent
// plain Transports and two independent goroutines.
package forward

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"socks5d/pkg/transport"
)

// bufferSize is the chunk size each direction's copy loop reads into,
// matching the teacher's fixed-size relay buffer convention.
const bufferSize = 32 * 1024

// Forwarder relays bytes in both directions between a and b until both
// directions' reads have returned an error (or EOF), then closes both
// Transports. The two
// directions are fully independent: one side's peer closing its write half
// does not block the other direction from continuing to drain whatever is
// already in flight.
type Forwarder struct {
	a, b transport.Transport
	log  zerolog.Logger
}

// New returns a Forwarder relaying between a and b.
func New(a, b transport.Transport, log zerolog.Logger) *Forwarder {
	return &Forwarder{a: a, b: b, log: log}
}

// Run blocks until both directions have finished, then closes both
// Transports and returns the first error observed, if any. Run returns
// promptly once ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	record := func(err error) {
		if err == nil || err == io.EOF {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		record(f.pump(ctx, f.a, f.b, "a->b"))
	}()
	go func() {
		defer wg.Done()
		record(f.pump(ctx, f.b, f.a, "b->a"))
	}()

	go func() {
		<-ctx.Done()
		_ = f.a.Close()
		_ = f.b.Close()
	}()

	wg.Wait()
	_ = f.a.Close()
	_ = f.b.Close()
	return firstErr
}

// pump copies from src to dst until src.Read fails, then half-closes dst's
// write side so the peer on dst's end observes EOF for this direction
// without affecting whatever dst->src traffic is still in flight the other
// way — the other pump goroutine keeps running until its own src.Read
// fails independently.
func (f *Forwarder) pump(ctx context.Context, src, dst transport.Transport, dir string) error {
	buf := make([]byte, bufferSize)
	for {
		n, err := src.Read(ctx, buf, true)
		if n > 0 {
			if _, werr := dst.Write(ctx, buf[:n]); werr != nil {
				f.log.Debug().Uint64("src", src.ID()).Uint64("dst", dst.ID()).Str("dir", dir).Err(werr).Msg("forward write failed")
				return werr
			}
		}
		if err != nil {
			if err != io.EOF {
				f.log.Debug().Uint64("src", src.ID()).Str("dir", dir).Err(err).Msg("forward read failed")
			}
			if cerr := dst.CloseWrite(); cerr != nil {
				f.log.Debug().Uint64("dst", dst.ID()).Str("dir", dir).Err(cerr).Msg("half-close failed")
			}
			return err
		}
	}
}
