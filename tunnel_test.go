package proxy

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestTunnelBridgesBothDirections(t *testing.T) {
	aClient, aServer := net.Pipe()
	bClient, bServer := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Tunnel(context.Background(), aServer, bServer)
	}()

	go func() {
		aClient.Write([]byte("hello from a"))
	}()

	buf := make([]byte, 64)
	n, _ := bClient.Read(buf)
	if got := string(buf[:n]); got != "hello from a" {
		t.Errorf("b received %q, want %q", got, "hello from a")
	}

	bClient.Write([]byte("hello from b"))
	bClient.Close()

	buf2 := make([]byte, 64)
	n2, _ := aClient.Read(buf2)
	if got := string(buf2[:n2]); got != "hello from b" {
		t.Errorf("a received %q, want %q", got, "hello from b")
	}

	aClient.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tunnel did not complete after both sides closed")
	}
}

func TestTunnelCancellationUnblocksBothCopies(t *testing.T) {
	aClient, aServer := net.Pipe()
	bClient, bServer := net.Pipe()
	defer aClient.Close()
	defer bClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Tunnel(ctx, aServer, bServer)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tunnel did not unblock after cancellation")
	}
}

func TestTunnelCopiesAreByteExact(t *testing.T) {
	aClient, aServer := net.Pipe()
	bClient, bServer := net.Pipe()

	payload := bytes.Repeat([]byte("payload-bytes-"), 1000)

	done := make(chan error, 1)
	go func() {
		done <- Tunnel(context.Background(), aServer, bServer)
	}()

	received := make([]byte, 0, len(payload))
	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for len(received) < len(payload) {
			n, err := bClient.Read(buf)
			received = append(received, buf[:n]...)
			if err != nil {
				break
			}
		}
		close(readDone)
	}()

	aClient.Write(payload)
	aClient.Close()

	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive the full payload")
	}
	if !bytes.Equal(received, payload) {
		t.Fatal("tunneled payload was not byte-exact")
	}

	bClient.Close()
	<-done
}
