package server

import "time"

// Stats is a point-in-time view of a server.
type Stats struct {
	Name    string
	Addr    string
	Running bool
	Started time.Time
	Stopped time.Time

	// TotalClients counts every connection handed to the handler.
	TotalClients uint64
	// AliveClients is the number of registered connections.
	AliveClients int
	Blocked      uint64

	Errors        uint64
	LastError     string
	LastErrorTime time.Time
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	st := Stats{
		Name:         s.Name(),
		Running:      s.Running(),
		TotalClients: s.total.Load(),
		AliveClients: s.conns.Len(),
		Blocked:      s.blocked.Load(),
		Errors:       s.errors.Load(),
	}
	if a := s.Addr(); a != nil {
		st.Addr = a.String()
	}

	s.statMu.Lock()
	st.Started = s.started
	st.Stopped = s.stopped
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		st.LastErrorTime = s.lastErrAt
	}
	s.statMu.Unlock()
	return st
}

// Uptime returns how long the server has been running, or zero.
func (st Stats) Uptime() time.Duration {
	if !st.Running || st.Started.IsZero() {
		return 0
	}
	return time.Since(st.Started)
}
