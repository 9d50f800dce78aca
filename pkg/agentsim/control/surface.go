// Package control implements the narrow in-process Control Surface exposed
// to the external REST facade: config snapshot/reload, OID enumeration and
// inspection, scenario injection, and event subscription. It is grounded on
// the adapted application's Reload (an atomic config swap under a lock,
// reusing the same load path as startup) together with the Simulation
// Engine's scenario mechanics and event bus built in this module.
package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"
	"github.com/mocksnmp/agentsim/pkg/agentsim/engine"
	"github.com/mocksnmp/agentsim/pkg/agentsim/events"
	"github.com/mocksnmp/agentsim/pkg/agentsim/simulation"
	"github.com/mocksnmp/agentsim/pkg/agentsim/store"
	"github.com/mocksnmp/agentsim/pkg/agentsim/wire"
	"github.com/mocksnmp/agentsim/recfile"
)

// OIDEntry is one enumerated record, as returned by ListOIDs.
type OIDEntry struct {
	OID  models.OID
	Type gosnmp.Asn1BER
}

// OverlaySpec describes one overlay a scenario installs, in the same
// "type-code:value" syntax record files and state-machine overlays use.
type OverlaySpec struct {
	ContextRef string
	OID        string
	TypeValue  string
}

// ReloadFunc rebuilds the running pipeline (stores, behavior chain, USM
// users) from a new configuration. Supplied by the application wiring layer
// so this package never needs to know how bootstrap works.
type ReloadFunc func(*models.Config) error

// Surface is the Control Surface (C8). All operations are non-blocking from
// the caller's perspective: config changes are serialized on a single
// writer, while readers see a consistent snapshot via pointer swap, the
// same discipline the Protocol Engine's store registry uses.
type Surface struct {
	mu       sync.RWMutex
	cfg      *models.Config
	stores   map[string]*store.Store
	resolver *agentctx.Resolver
	eng      *engine.Engine
	sim      *simulation.Engine
	bus      *events.Bus
	reload   ReloadFunc
}

// New builds a Surface over the currently running pipeline. stores must be
// the same map instance (or an equivalent keyed-by-StoreRef map) the engine
// was built with.
func New(cfg *models.Config, stores map[string]*store.Store, resolver *agentctx.Resolver, eng *engine.Engine, sim *simulation.Engine, bus *events.Bus, reload ReloadFunc) *Surface {
	return &Surface{
		cfg:      cfg,
		stores:   stores,
		resolver: resolver,
		eng:      eng,
		sim:      sim,
		bus:      bus,
		reload:   reload,
	}
}

// Rebind atomically replaces the store registry and Context Resolver the
// Surface inspects directly (ListOIDs, QueryOIDs, StartScenario), used by
// the application wiring layer's reload hook immediately after it rebuilds
// the same two structures for the Protocol Engine, so both ends of the
// pipeline observe the new generation together.
func (s *Surface) Rebind(stores map[string]*store.Store, resolver *agentctx.Resolver) {
	s.mu.Lock()
	s.stores = stores
	s.resolver = resolver
	s.mu.Unlock()
}

// SnapshotConfig returns a copy of the currently active configuration.
func (s *Surface) SnapshotConfig() models.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// ApplyConfigDelta validates and installs newCfg as the running
// configuration. If the reload hook rejects newCfg, the stored configuration
// is left unchanged and the error is returned. With no reload hook wired in,
// newCfg is stored directly without rebuilding the pipeline.
func (s *Surface) ApplyConfigDelta(newCfg models.Config) error {
	newCfg.WithDefaults()
	if s.reload != nil {
		if err := s.reload(&newCfg); err != nil {
			return fmt.Errorf("control: reload rejected: %w", err)
		}
	}
	s.mu.Lock()
	s.cfg = &newCfg
	s.mu.Unlock()
	return nil
}

// ListOIDs enumerates up to limit records in storeRef whose OID has the
// given prefix, starting strictly after cursor. A zero-length cursor starts
// from the beginning of the store. nextCursor is the OID to resume from;
// hasMore is false once the store (or the prefix's span) is exhausted.
func (s *Surface) ListOIDs(storeRef string, prefix models.OID, limit int, cursor models.OID) (oids []OIDEntry, nextCursor models.OID, hasMore bool, err error) {
	st := s.store(storeRef)
	if st == nil {
		return nil, nil, false, fmt.Errorf("control: unknown store %q", storeRef)
	}
	if limit <= 0 {
		limit = 100
	}

	req := &models.RequestContext{RecvTime: time.Now()}
	start := cursor
	if len(start) == 0 && len(prefix) > 0 {
		// The prefix OID itself (even if no record has that exact OID) sorts
		// immediately before every record under it, so starting Next from
		// here lands on the first member of the subtree.
		start = prefix
	}

	cur := start
	for len(oids) < limit {
		rec, typ, _, nerr := st.Next(req, cur)
		if nerr != nil {
			return nil, nil, false, nerr
		}
		if typ == gosnmp.EndOfMibView {
			break
		}
		if len(prefix) > 0 && !rec.OID.HasPrefix(prefix) {
			break
		}
		oids = append(oids, OIDEntry{OID: rec.OID, Type: typ})
		cur = rec.OID
	}
	hasMore = storePeekHasPrefix(st, req, cur, prefix)
	return oids, cur, hasMore, nil
}

// storePeekHasPrefix reports whether the record after cur exists and (when
// prefix is non-empty) still falls under it, used to decide hasMore without
// consuming the next page's first entry.
func storePeekHasPrefix(st *store.Store, req *models.RequestContext, cur models.OID, prefix models.OID) bool {
	rec, typ, _, err := st.Next(req, cur)
	if err != nil || typ == gosnmp.EndOfMibView {
		return false
	}
	return len(prefix) == 0 || rec.OID.HasPrefix(prefix)
}

// QueryOIDs resolves the current value of each requested OID directly
// against storeRef, bypassing the Context Resolver and Behavior Chain
// entirely — for inspection, not for simulating wire traffic.
func (s *Surface) QueryOIDs(storeRef string, oids []models.OID) ([]wire.DecodedVarBind, error) {
	st := s.store(storeRef)
	if st == nil {
		return nil, fmt.Errorf("control: unknown store %q", storeRef)
	}
	req := &models.RequestContext{RecvTime: time.Now()}
	out := make([]wire.DecodedVarBind, len(oids))
	for i, oid := range oids {
		typ, val, err := st.Get(req, oid)
		if err != nil {
			return nil, fmt.Errorf("control: query %s: %w", oid, err)
		}
		out[i] = wire.DecodedVarBind{OID: oid, Type: typ, Value: val}
	}
	return out, nil
}

// StartScenario installs the given overlays and schedules their automatic
// reversal after duration, returning a scenario id StopScenario accepts.
func (s *Surface) StartScenario(overlays []OverlaySpec, duration time.Duration) (string, error) {
	steps := make([]simulation.ScenarioStep, 0, len(overlays))
	for _, ov := range overlays {
		oid, err := models.ParseOID(ov.OID)
		if err != nil {
			return "", fmt.Errorf("control: scenario overlay oid %q: %w", ov.OID, err)
		}
		asnType, value, err := recfile.ParseTypeValue(ov.TypeValue)
		if err != nil {
			return "", fmt.Errorf("control: scenario overlay value %q: %w", ov.TypeValue, err)
		}
		steps = append(steps, &simulation.OverlayStep{
			Resolver:   s.resolver,
			ContextRef: ov.ContextRef,
			OID:        oid,
			Value:      models.Record{OID: oid, Type: asnType, Value: value},
		})
	}
	return s.sim.StartScenario(steps, duration), nil
}

// StopScenario cancels a running scenario early, restoring its overlays.
func (s *Surface) StopScenario(id string) bool {
	return s.sim.StopScenario(id)
}

// Subscribe returns a stream of events for topic (one of metrics, logs,
// snmp_activity, state). Subscribing again for the same topic replaces the
// previous subscriber.
func (s *Surface) Subscribe(topic string) <-chan events.Event {
	return s.bus.Subscribe(topic)
}

func (s *Surface) store(ref string) *store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stores[ref]
}
