// Package context resolves which Record Store (and access policy) applies
// to an incoming request, and holds the per-context OID override overlay
// that the simulation engine's state machines write into.
package context

import (
	"fmt"
	"sync"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// ErrAuthorizationFailed is returned when a v3 user is not permitted to
// query the resolved context. v1/v2c failures are silent drops instead
// (ctx.Derived.DropDecision is set) and never return this error.
var ErrAuthorizationFailed = fmt.Errorf("context: authorization failed")

// entry bundles a Context definition with its own overlay mutex, so
// concurrent Simulation Engine ticks writing overlays for different
// contexts never contend with each other.
type entry struct {
	def *models.Context
	mu  sync.RWMutex // guards def.OIDOverrides
}

// Resolver maps community strings / v3 contextNames to Contexts and
// enforces each Context's ACL and denied-OID list before a request ever
// reaches the Record Store.
type Resolver struct {
	mu             sync.RWMutex
	contexts       map[string]*entry
	communityToCtx map[string]string
	defaultContext string
}

// New builds a Resolver from the decoded context list and community
// mappings. defaultContext is used for v1/v2c communities with no explicit
// mapping.
func New(contexts []models.Context, mappings []models.CommunityMapping, defaultContext string) *Resolver {
	r := &Resolver{
		contexts:       make(map[string]*entry, len(contexts)),
		communityToCtx: make(map[string]string, len(mappings)),
		defaultContext: defaultContext,
	}
	for i := range contexts {
		c := contexts[i]
		if c.OIDOverrides == nil {
			c.OIDOverrides = make(map[string]models.Record)
		}
		r.contexts[c.Name] = &entry{def: &c}
	}
	for _, m := range mappings {
		r.communityToCtx[m.Community] = m.Context
	}
	return r
}

// Resolve determines ctx.ContextName and enforces the resolved Context's
// ACL. On v3 authorization failure it returns ErrAuthorizationFailed; on
// v1/v2c it instead sets ctx.Derived.DropDecision and returns nil, per the
// silent-drop policy for unauthorized community access.
func (r *Resolver) Resolve(req *models.RequestContext) (*models.Context, error) {
	name := req.ContextName
	if req.Version != gosnmp.Version3 {
		name = r.communityContext(req.Community)
		req.ContextName = name
	}

	e := r.lookup(name)
	if e == nil {
		if req.Version == gosnmp.Version3 {
			return nil, ErrAuthorizationFailed
		}
		req.Derived.DropDecision = true
		req.Derived.DropSide = "request"
		return nil, nil
	}

	e.mu.RLock()
	def := e.def
	e.mu.RUnlock()

	if len(def.AllowedUsers) > 0 && !contains(def.AllowedUsers, req.EffectiveUser()) {
		if req.Version == gosnmp.Version3 {
			return nil, ErrAuthorizationFailed
		}
		req.Derived.DropDecision = true
		req.Derived.DropSide = "request"
		return nil, nil
	}
	return def, nil
}

// communityContext maps a v1/v2c community to a context name, falling back
// to the configured default for unmapped communities.
func (r *Resolver) communityContext(community string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.communityToCtx[community]; ok {
		return name
	}
	return r.defaultContext
}

func (r *Resolver) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[name]
}

// IsDenied reports whether oid falls under one of def's denied patterns.
func IsDenied(def *models.Context, oid models.OID) bool {
	for _, pattern := range def.DeniedOIDPatterns {
		if oid.HasPrefix(pattern) {
			return true
		}
	}
	return false
}

// Overlay returns the override Record for oid if one is set, consulted
// before the underlying Record Store for an exact match.
func (r *Resolver) Overlay(name string, oid models.OID) (models.Record, bool) {
	e := r.lookup(name)
	if e == nil {
		return models.Record{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.def.OIDOverrides[oid.String()]
	return rec, ok
}

// SetOverlay installs rec as the state-machine overlay for oid within the
// named context, replacing any overlay already there. ClearOverlay removes
// one.
func (r *Resolver) SetOverlay(name string, oid models.OID, rec models.Record) {
	e := r.lookup(name)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.def.OIDOverrides[oid.String()] = rec
}

// ClearOverlay removes an overlay entry for oid within the named context.
func (r *Resolver) ClearOverlay(name string, oid models.OID) {
	e := r.lookup(name)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.def.OIDOverrides, oid.String())
}

// StoreRef returns the backing Record Store reference for a resolved
// context definition.
func StoreRef(def *models.Context) string { return def.StoreRef }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
