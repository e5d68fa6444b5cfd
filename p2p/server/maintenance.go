package server

import (
	"context"
	"time"
)

// bodyTimeoutInterval is how often RunMaintenance sweeps for body requests
// past their deadline (spec.md §4.12 step 3's retry-on-timeout). A var, not
// a const, so tests can shrink it.
var bodyTimeoutInterval = 2 * time.Second

// RunMaintenance drives periodic housekeeping the connection layer itself
// has no other trigger for: expiring body requests that never got a
// response. Grounded on p2p/gossip.RunFeeds's shape (a free function
// looping on a ticker plus a stop channel) rather than a ticker buried
// inside a method, since the caller already owns that pattern for the
// other per-peer background loop.
func RunMaintenance(s *Server, stop <-chan struct{}) {
	ticker := time.NewTicker(bodyTimeoutInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sync.RunBodyTimeouts(now)
		case <-stop:
			return
		}
	}
}

// Name identifies Server in shutdown logs (internal/lifecycle.Component).
func (s *Server) Name() string {
	return "p2p/server"
}

// Shutdown closes the listener and every live connection so blocked reads
// unblock and run() goroutines exit (internal/lifecycle.Component).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.nc.Close()
	}
	return nil
}
