// Package subupstream provides a pluggable shared registry for the
// subscription component's upstream-subscription dedup counts. A single
// gateway instance keeps this state in memory (internal/gateway's
// Subscriptions type does that locally); this package exists for HA
// deployments where several gateway processes sit behind the same host
// framework and must agree on which events already have a live upstream
// subscription before issuing a duplicate one.
//
// Per the design's "no persisted state" rule (§3/§6), the in-memory
// implementation is the default — this is a best-effort coordination aid,
// not a durability layer, so transient disagreement across instances is
// acceptable and self-heals on the next Track/Untrack.
package subupstream

import "sync"

// Store tracks, per event name, how many local subscribers across the
// fleet currently care about it. Implementations MUST be safe for
// concurrent use.
type Store interface {
    // Track increments the shared count for event and reports whether this
    // call transitioned it from zero (the caller owns the upstream
    // subscribe call only when first is true).
    Track(event string) (first bool, err error)

    // Untrack decrements the shared count for event and reports whether it
    // transitioned to zero (the caller owns the upstream unsubscribe call
    // only when last is true).
    Untrack(event string) (last bool, err error)

    // Count returns the current shared count for event, mainly for tests
    // and diagnostics.
    Count(event string) (int64, error)
}

// inMem is the default single-process Store: a plain mutex-guarded map.
type inMem struct {
    mu     sync.Mutex
    counts map[string]int64
}

// NewInMem returns the default, non-distributed Store.
func NewInMem() Store {
    return &inMem{counts: make(map[string]int64)}
}

func (s *inMem) Track(event string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.counts[event]++
    return s.counts[event] == 1, nil
}

func (s *inMem) Untrack(event string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    n, ok := s.counts[event]
    if !ok || n == 0 {
        return false, nil
    }
    n--
    if n <= 0 {
        delete(s.counts, event)
        return true, nil
    }
    s.counts[event] = n
    return false, nil
}

func (s *inMem) Count(event string) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.counts[event], nil
}
