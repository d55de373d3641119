package proxy

import (
	"context"
	"io"
	"net"
)

// halfCloser is satisfied by *net.TCPConn and the Conn wrapper: conns that
// can shut down only their write half.
type halfCloser interface {
	CloseWrite() error
}

// Tunnel copies bytes bidirectionally between a and b until both halves
// reach EOF or ctx is cancelled. A clean EOF on one direction only
// half-closes its destination (tunnelCopy's CloseWrite) and waits for the
// other direction to finish on its own; only a genuine error on one side
// cancels the other. On cancellation or such an error Tunnel closes both
// conns to unblock the copies; after a clean finish in both directions it
// leaves closing them to the caller.
func Tunnel(ctx context.Context, a, b net.Conn) error {
	inner, cancel := context.WithCancel(ctx)
	defer cancel()

	abort := make(chan struct{})
	go func() {
		select {
		case <-inner.Done():
			a.Close()
			b.Close()
		case <-abort:
		}
	}()

	errc := make(chan error, 2)
	go func() { errc <- tunnelCopy(b, a) }()
	go func() { errc <- tunnelCopy(a, b) }()

	first := <-errc
	if first != nil && !IsEOF(first) {
		cancel()
	}
	second := <-errc
	close(abort)

	if ctx.Err() != nil {
		return ErrCancelled
	}
	if first != nil && !IsEOF(first) {
		return &TunnelError{Err: first}
	}
	if second != nil && !IsEOF(second) {
		return &TunnelError{Err: second}
	}
	return nil
}

// tunnelCopy copies src into dst until EOF or error, then half-closes dst's
// write side so the peer observes EOF promptly instead of waiting for a
// full socket close.
func tunnelCopy(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	if hc, ok := dst.(halfCloser); ok {
		hc.CloseWrite()
	}
	return err
}
