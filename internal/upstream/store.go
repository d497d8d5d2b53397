package upstream

import (
	"reflect"
	"sync/atomic"

	"github.com/reigadegr/cc-proxy-go/internal/config"
)

// Store holds the live Selector behind an atomic pointer and rebuilds
// it on Rebuild, or on RebuildIfChanged when the upstream list differs.
// It never
// mutates a Selector in place, per the package's "new Selector, atomic
// swap" contract.
type Store struct {
	current atomic.Pointer[Selector]
}

// NewStore builds a Store for the given Config's upstream list. Wire
// it to config.Store.OnReload so a reload with a changed upstream list
// produces a fresh Selector.
func NewStore(cfg *config.Config) *Store {
	s := &Store{}
	s.Rebuild(cfg)

	return s
}

// Rebuild constructs a new Selector from cfg's upstream list and
// publishes it, discarding the old one's rotation state.
func (s *Store) Rebuild(cfg *config.Config) {
	s.current.Store(New(cfg.Upstream))
}

// RebuildIfChanged rebuilds the Selector only when next's upstream
// list differs from old's. A config reload that touches an unrelated
// field (e.g. log_req_body) must not reset round-robin rotation, so
// callers wire this, not Rebuild, to config.Store.OnReload.
func (s *Store) RebuildIfChanged(old, next *config.Config) {
	if old != nil && reflect.DeepEqual(old.Upstream, next.Upstream) {
		return
	}

	s.Rebuild(next)
}

// Current returns the Selector currently in effect.
func (s *Store) Current() *Selector {
	return s.current.Load()
}
