// internal/gateway/subscription.go
// Component F: subscription & event fan-out. Maintains event -> subscriber
// set, deduplicates the upstream subscription per event name, and routes
// backend-originated events to every interested connection.
package gateway

import (
    "sync"

    "github.com/kestrelgw/appgw/internal/gateway/subupstream"
)

// SubscriberEntry is one connection's interest in one event.
type SubscriberEntry struct {
    Event           string
    ConnectionId    ConnectionId
    AppId           AppId
    RequestId       RequestId
    DestinationHint string // typically rule.Alias: the method name to emit under
}

// Upstream is the host framework's subscription surface (§6: "Subscription
// upstream"). notifier is invoked by the framework whenever event fires;
// Dispatch below is wired as that notifier.
type Upstream interface {
    SubscribeToBackend(event string, notifier func(event, payload string)) error
    UnsubscribeFromBackend(event string) error
}

// Emitter is the subset of component D that F needs: handing an emission to
// a specific connection. Implemented by *Manager.
type Emitter interface {
    Emit(cid ConnectionId, method string, payload string)
}

// Subscriptions implements component F. The zero value is not usable;
// construct with NewSubscriptions.
type Subscriptions struct {
    mu   sync.Mutex
    sets map[string]map[ConnectionId]SubscriberEntry

    upstream Upstream
    emitter  Emitter
    jobs     *Pool
    self     *WeakOwner
    shared   subupstream.Store // nil: single-instance, local transitions decide
}

// NewSubscriptions wires F to its upstream, its emitter (D) and a job pool
// used so that dispatch to each subscriber never runs inline on the
// backend's notifying goroutine (§4.F: "not inline with the backend's
// thread"). The shared dedup registry defaults to a local, in-process one;
// call SetSharedStore to point a fleet of gateway instances at Redis
// instead.
func NewSubscriptions(upstream Upstream, emitter Emitter, jobs *Pool) *Subscriptions {
    return &Subscriptions{
        sets:     make(map[string]map[ConnectionId]SubscriberEntry),
        upstream: upstream,
        emitter:  emitter,
        jobs:     jobs,
        self:     NewWeakOwner(),
        shared:   subupstream.NewInMem(),
    }
}

// SetSharedStore swaps F's upstream-dedup registry, e.g. for a Redis-backed
// one shared across a fleet of gateway instances (internal/gateway/
// subupstream). Must be called before Subscribe/Unsubscribe traffic starts.
func (s *Subscriptions) SetSharedStore(store subupstream.Store) { s.shared = store }

// SetUpstream replaces the host framework's subscription surface. Must be
// called before Subscribe/Unsubscribe traffic starts; the default that
// NewServer installs fails closed until a real one is wired in.
func (s *Subscriptions) SetUpstream(u Upstream) { s.upstream = u }

// Subscribe registers (event, cid) idempotently. The upstream subscribe is
// issued exactly once, the moment the set transitions empty -> non-empty;
// the transition check happens under the lock, but the upstream call itself
// runs after the lock is released (§4.F discipline).
func (s *Subscriptions) Subscribe(event string, cid ConnectionId, appID AppId, reqID RequestId, destinationHint string) error {
    var localTransition bool

    s.mu.Lock()
    set, ok := s.sets[event]
    if !ok {
        set = make(map[ConnectionId]SubscriberEntry)
        s.sets[event] = set
    }
    wasEmpty := len(set) == 0
    set[cid] = SubscriberEntry{
        Event:           event,
        ConnectionId:    cid,
        AppId:           appID,
        RequestId:       reqID,
        DestinationHint: destinationHint,
    }
    if wasEmpty {
        localTransition = true
    }
    s.mu.Unlock()

    if !localTransition {
        return nil
    }

    // This connection is the first local subscriber to event. The shared
    // registry makes the final call, since with a distributed backing
    // another instance in the fleet may already hold the live upstream
    // subscription.
    first := true
    if s.shared != nil {
        var err error
        first, err = s.shared.Track(event)
        if err != nil {
            return err
        }
    }
    if first {
        return s.upstream.SubscribeToBackend(event, s.dispatchNotifier)
    }
    return nil
}

// Unsubscribe removes (event, cid). A no-op for an entry that does not
// exist. The upstream unsubscribe is issued exactly once, the moment the set
// transitions non-empty -> empty.
func (s *Subscriptions) Unsubscribe(event string, cid ConnectionId) error {
    var localTransition bool

    s.mu.Lock()
    set, ok := s.sets[event]
    if ok {
        if _, present := set[cid]; present {
            delete(set, cid)
            if len(set) == 0 {
                delete(s.sets, event)
                localTransition = true
            }
        }
    }
    s.mu.Unlock()

    if !localTransition {
        return nil
    }

    last := true
    if s.shared != nil {
        var err error
        last, err = s.shared.Untrack(event)
        if err != nil {
            return err
        }
    }
    if last {
        return s.upstream.UnsubscribeFromBackend(event)
    }
    return nil
}

// dispatchNotifier is registered with the upstream as the per-event
// notifier; it simply forwards to Dispatch.
func (s *Subscriptions) dispatchNotifier(event, payload string) {
    s.Dispatch(event, payload)
}

// Dispatch hands payload to every current subscriber of event. Each
// delivery is submitted to the job pool individually — one slow or blocked
// connection's send queue must never delay another's, and neither may block
// the goroutine the backend used to publish the event.
func (s *Subscriptions) Dispatch(event, payload string) {
    s.mu.Lock()
    set, ok := s.sets[event]
    var entries []SubscriberEntry
    if ok {
        entries = make([]SubscriberEntry, 0, len(set))
        for _, e := range set {
            entries = append(entries, e)
        }
    }
    s.mu.Unlock()

    handle := s.self.Handle()
    for _, e := range entries {
        entry := e
        s.jobs.SubmitGuarded(handle, func() {
            s.emitter.Emit(entry.ConnectionId, entry.DestinationHint, payload)
        })
    }
}

// Cleanup removes every entry for cid across all events, issuing a
// compensating upstream unsubscribe for any event whose set became empty as
// a result. Called from D's disconnect path exactly once per connection.
func (s *Subscriptions) Cleanup(cid ConnectionId) {
    var toUnsubscribe []string

    s.mu.Lock()
    for event, set := range s.sets {
        if _, present := set[cid]; present {
            delete(set, cid)
            if len(set) == 0 {
                delete(s.sets, event)
                toUnsubscribe = append(toUnsubscribe, event)
            }
        }
    }
    s.mu.Unlock()

    for _, event := range toUnsubscribe {
        last := true
        if s.shared != nil {
            if l, err := s.shared.Untrack(event); err == nil {
                last = l
            }
        }
        if last {
            _ = s.upstream.UnsubscribeFromBackend(event)
        }
    }
}

// Shutdown invalidates F's weak-self handle so any job already queued by
// Dispatch becomes a no-op once it runs (§5 shutdown protocol, step iv).
func (s *Subscriptions) Shutdown() { s.self.Invalidate() }

// subscriberCountForEvent reports how many connections currently subscribe
// to event; used by tests to assert the upstream-dedup invariant in §8.
func (s *Subscriptions) subscriberCountForEvent(event string) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.sets[event])
}

// hasSubscriber reports whether cid is currently subscribed to event.
func (s *Subscriptions) hasSubscriber(event string, cid ConnectionId) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    set, ok := s.sets[event]
    if !ok {
        return false
    }
    _, present := set[cid]
    return present
}
