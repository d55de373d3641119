package proxy

import (
	"context"
	"net"
	"sync"
)

// Supervisor binds one or more TCP listeners, accepts connections, spawns
// an independent handler per connection, and coordinates graceful shutdown.
type Supervisor struct {
	Cell *Cell

	listeners []net.Listener
	wg        sync.WaitGroup
}

// Bind opens a TCP listener on every addr. If any bind fails, every
// listener opened so far is closed and a *BindError is returned — startup
// aborts rather than running with a partial listener set.
func (s *Supervisor) Bind(addrs []string) error {
	for _, addr := range addrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			s.closeAll()
			return &BindError{Addr: addr, Err: err}
		}
		Infof("listening on %s", addr)
		s.listeners = append(s.listeners, l)
	}
	return nil
}

func (s *Supervisor) closeAll() {
	for _, l := range s.listeners {
		l.Close()
	}
	s.listeners = nil
}

// Serve accepts on every bound listener until ctx is cancelled, spawning a
// goroutine per accepted connection. It returns once every accept loop and
// every in-flight handler has exited — the drain the supervisor awaits
// after a shutdown signal.
func (s *Supervisor) Serve(ctx context.Context) {
	for _, l := range s.listeners {
		s.wg.Add(1)
		go s.acceptLoop(ctx, l)
	}
	s.wg.Wait()
}

func (s *Supervisor) acceptLoop(ctx context.Context, l net.Listener) {
	defer s.wg.Done()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-closed:
		}
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			Warnf("accept on %s: %v", l.Addr(), err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			HandleConnection(ctx, conn, s.Cell)
		}()
	}
}
