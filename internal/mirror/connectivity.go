package mirror

import (
	"log/slog"
	"sync/atomic"
)

// Connectivity is the process-wide online flag. Transitions use
// compare-and-swap so each flip is logged exactly once.
type Connectivity struct {
	online atomic.Bool
}

// NewConnectivity returns a state starting offline.
func NewConnectivity() *Connectivity {
	return &Connectivity{}
}

// Online reports the last observed reachability.
func (c *Connectivity) Online() bool {
	return c.online.Load()
}

// Set records the observed reachability and reports whether it changed.
func (c *Connectivity) Set(online bool) bool {
	if !c.online.CompareAndSwap(!online, online) {
		return false
	}
	if online {
		slog.Info("remote mirror reachable",
			"component", "mirror",
			"action", "online",
		)
	} else {
		slog.Warn("remote mirror unreachable",
			"component", "mirror",
			"action", "offline",
		)
	}
	return true
}
