// Package upstream implements the deterministic 2-D round-robin
// selector over (upstream, api_key) pairs.
package upstream

import (
	"sync/atomic"

	"github.com/reigadegr/cc-proxy-go/internal/config"
)

// Selection is a yielded (upstream, endpoint, model, api_key, mode)
// tuple. String fields borrow from the Config snapshot the Selector
// was built from; they remain valid for the lifetime of the selector.
type Selection struct {
	UpstreamIndex int
	Endpoint      string
	Model         string
	APIKey        string
	Mode          config.Mode
}

// Selector performs column-major round robin across a fixed list of
// upstreams, each with its own ordered list of API keys. It is
// immutable once constructed; a changed upstream list means building a
// new Selector and swapping it in, never mutating this one.
type Selector struct {
	upstreams []config.UpstreamConfig
	cursor    atomic.Uint64
}

// New builds a Selector for the given upstream list. It returns nil if
// the list is empty, matching spec.md's "selector empty" error path.
func New(upstreams []config.UpstreamConfig) *Selector {
	if len(upstreams) == 0 {
		return nil
	}

	return &Selector{upstreams: upstreams}
}

// Next returns the next Selection, or false if the selector has no
// upstreams (always true for a non-nil Selector built via New, but
// kept for a nil-receiver-safe call site).
//
// For N upstreams with per-upstream key counts K0..K(N-1), request i
// yields upstream_idx = i mod N and key_idx = (i div N) mod K(upstream_idx) —
// a column-major traversal of the (upstream, key) grid. This means
// adding a key to one upstream never starves the others, and adding a
// new upstream doesn't disturb the rotation of existing keys.
func (s *Selector) Next() (Selection, bool) {
	if s == nil || len(s.upstreams) == 0 {
		return Selection{}, false
	}

	upstreamCount := uint64(len(s.upstreams))
	globalIdx := s.cursor.Add(1) - 1

	upstreamIdx := globalIdx % upstreamCount
	up := s.upstreams[upstreamIdx]

	var apiKey string
	if len(up.APIKeys) > 0 {
		keyCount := uint64(len(up.APIKeys))
		keyIdx := (globalIdx / upstreamCount) % keyCount
		apiKey = up.APIKeys[keyIdx]
	}

	return Selection{
		UpstreamIndex: int(upstreamIdx),
		Endpoint:      up.Endpoint,
		Model:         up.Model,
		APIKey:        apiKey,
		Mode:          up.Mode,
	}, true
}
