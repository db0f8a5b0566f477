// internal/gateway/table.go
// Component B: the resolution table. A ResolutionRule maps a client-visible
// method name onto a backend route. The table is read-mostly: built once at
// load and swapped wholesale on reload via an atomic pointer, so readers on
// the hot path never take a lock.
package gateway

import (
    "fmt"

    "github.com/spf13/viper"
    "go.uber.org/atomic"
)

// ResolutionRule is immutable once constructed;§3 invariants are enforced by
// NewTable at load time, not by the zero value.
type ResolutionRule struct {
    Method            string            `mapstructure:"method"`
    Alias             string            `mapstructure:"alias"`
    Event             string            `mapstructure:"event"`
    PermissionGroup   string            `mapstructure:"permissionGroup"`
    IncludeContext    bool              `mapstructure:"includeContext"`
    AdditionalContext map[string]string `mapstructure:"additionalContext"`
    UseDirectCall     bool              `mapstructure:"useDirectCall"`
}

// HasEvent reports whether this rule is an event-mode rule.
func (r ResolutionRule) HasEvent() bool { return r.Event != "" }

// Table is an immutable, read-mostly snapshot of resolution rules keyed by
// method name. The zero value is not usable; build one with NewTable.
type Table struct {
    byMethod map[string]ResolutionRule
}

// NewTable validates rules and returns an immutable Table, or an error if
// §3's invariants are violated (empty or duplicate method keys; an event rule that
// also claims useDirectCall in a way that contradicts its alias semantics is
// accepted — the spec only requires useDirectCall=true to mean an in-process
// alias, which this loader does not second-guess).
func NewTable(rules []ResolutionRule) (*Table, error) {
    byMethod := make(map[string]ResolutionRule, len(rules))
    for _, r := range rules {
        if r.Method == "" {
            return nil, fmt.Errorf("gateway: resolution rule with empty method")
        }
        if _, dup := byMethod[r.Method]; dup {
            return nil, fmt.Errorf("gateway: duplicate resolution rule for method %q", r.Method)
        }
        byMethod[r.Method] = r
    }
    return &Table{byMethod: byMethod}, nil
}

// LoadResolutionTable reads a document of resolution rules from path (YAML,
// TOML or JSON, inferred from the extension) and builds a validated Table.
// The document is a top-level "rules" list of ResolutionRule objects.
func LoadResolutionTable(path string) (*Table, error) {
    v := viper.New()
    v.SetConfigFile(path)
    if err := v.ReadInConfig(); err != nil {
        return nil, fmt.Errorf("gateway: reading resolution table %q: %w", path, err)
    }
    var doc struct {
        Rules []ResolutionRule `mapstructure:"rules"`
    }
    if err := v.Unmarshal(&doc); err != nil {
        return nil, fmt.Errorf("gateway: decoding resolution table %q: %w", path, err)
    }
    return NewTable(doc.Rules)
}

func (t *Table) rule(method string) (ResolutionRule, bool) {
    if t == nil {
        return ResolutionRule{}, false
    }
    r, ok := t.byMethod[method]
    return r, ok
}

// ResolveAlias returns the backend alias/callsign for method.
func (t *Table) ResolveAlias(method string) (string, bool) {
    r, ok := t.rule(method)
    if !ok {
        return "", false
    }
    return r.Alias, true
}

// HasDirectCall reports whether method routes to an in-process component.
func (t *Table) HasDirectCall(method string) bool {
    r, ok := t.rule(method)
    return ok && r.UseDirectCall
}

// HasEvent returns the event name for method, if the rule is event-mode.
func (t *Table) HasEvent(method string) (string, bool) {
    r, ok := t.rule(method)
    if !ok || !r.HasEvent() {
        return "", false
    }
    return r.Event, true
}

// PermissionGroup returns the permission group required by method, if any.
func (t *Table) PermissionGroup(method string) (string, bool) {
    r, ok := t.rule(method)
    if !ok || r.PermissionGroup == "" {
        return "", false
    }
    return r.PermissionGroup, true
}

// IncludeContext reports whether the rule's additional context should be
// merged into the GatewayContext before dispatch.
func (t *Table) IncludeContext(method string) bool {
    r, ok := t.rule(method)
    return ok && r.IncludeContext
}

// AdditionalContext returns the rule's static additional context map.
func (t *Table) AdditionalContext(method string) map[string]string {
    r, ok := t.rule(method)
    if !ok {
        return nil
    }
    return r.AdditionalContext
}

// Lookup returns the full rule for method, letting callers avoid repeating
// method-name lookups across several of the accessors above.
func (t *Table) Lookup(method string) (ResolutionRule, bool) {
    return t.rule(method)
}

// TableHandle holds the currently active Table behind an atomic pointer so
// that a reload (§4.B, §6: "reload ... must publish a new table by atomic
// pointer/handle swap") never races with concurrent reads from E or F.
type TableHandle struct {
    ptr atomic.Pointer[Table]
}

// NewTableHandle wraps an initial table.
func NewTableHandle(t *Table) *TableHandle {
    h := &TableHandle{}
    h.ptr.Store(t)
    return h
}

// Load returns the currently active table snapshot.
func (h *TableHandle) Load() *Table { return h.ptr.Load() }

// Swap atomically publishes a new table snapshot, returning the previous one.
func (h *TableHandle) Swap(t *Table) *Table { return h.ptr.Swap(t) }
