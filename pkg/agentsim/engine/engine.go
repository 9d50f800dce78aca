// Package engine implements the SNMP Protocol Engine's operation
// semantics: Get, GetNext, GetBulk, and Set, each wiring the Context
// Resolver, Behavior Chain, and Record Store together per request. It is
// dispatch-by-PDU-type, the same shape the original attribute matcher
// dispatches on varbind shape (table vs scalar), just switched on a
// different discriminant.
package engine

import (
	"sync"

	"github.com/gosnmp/gosnmp"

	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/behavior"
	"github.com/mocksnmp/agentsim/pkg/agentsim/store"
	"github.com/mocksnmp/agentsim/pkg/agentsim/wire"
)

// Outcome is the result of processing one request: either a set of
// response varbinds with an error status/index, or a decision to drop the
// request/response entirely.
type Outcome struct {
	Varbinds    []wire.DecodedVarBind
	ErrorStatus gosnmp.SNMPError
	ErrorIndex  int
	Drop        bool
	DropSide    string
	Report      bool // true when this is a v3 Report PDU (authorization/time-window failure)
}

// Engine dispatches resolved requests to the right Record Store after
// running them through the Context Resolver and Behavior Chain.
type Engine struct {
	mu       sync.RWMutex
	stores   map[string]*store.Store
	resolver *agentctx.Resolver
	chain    *behavior.Chain
	limits   models.LimitsConfig
}

// New builds an Engine. stores is keyed by the StoreRef name contexts
// reference.
func New(stores map[string]*store.Store, resolver *agentctx.Resolver, chain *behavior.Chain, limits models.LimitsConfig) *Engine {
	return &Engine{stores: stores, resolver: resolver, chain: chain, limits: limits}
}

// SetStores atomically replaces the store registry, used by Control
// Surface reloads.
func (e *Engine) SetStores(stores map[string]*store.Store) {
	e.mu.Lock()
	e.stores = stores
	e.mu.Unlock()
}

// SetResolver atomically replaces the Context Resolver, used by Control
// Surface reloads that change contexts, ACLs, or community mappings.
func (e *Engine) SetResolver(resolver *agentctx.Resolver) {
	e.mu.Lock()
	e.resolver = resolver
	e.mu.Unlock()
}

// SetChain atomically replaces the Behavior Chain, used by Control Surface
// reloads that change fault-injection configuration.
func (e *Engine) SetChain(chain *behavior.Chain) {
	e.mu.Lock()
	e.chain = chain
	e.mu.Unlock()
}

func (e *Engine) store(ref string) *store.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stores[ref]
}

// Process runs req through C3 (Context Resolver), C4 (Behavior Chain), and
// C1 (Record Store), returning the Outcome the Protocol Engine should
// encode onto the wire.
func (e *Engine) Process(req *models.RequestContext) Outcome {
	e.mu.RLock()
	resolver := e.resolver
	chain := e.chain
	limits := e.limits
	e.mu.RUnlock()

	def, err := resolver.Resolve(req)
	if err == agentctx.ErrAuthorizationFailed {
		return Outcome{Report: true, ErrorStatus: gosnmp.AuthorizationError}
	}
	if req.Derived.DropDecision && req.Derived.DropSide == "request" {
		return Outcome{Drop: true, DropSide: "request"}
	}
	if def == nil {
		return Outcome{Drop: true, DropSide: "request"}
	}

	chain.RunBefore(req)
	defer func() {
		for i := range req.Varbinds {
			chain.RunAfter(req, i)
		}
	}()
	if req.Derived.DropDecision && req.Derived.DropSide == "request" {
		return Outcome{Drop: true, DropSide: "request"}
	}
	if req.Derived.ErrorOverride != nil {
		idx := req.Derived.ErrorIndex
		if idx == 0 && len(req.Varbinds) > 0 {
			idx = 1
		}
		return Outcome{ErrorStatus: *req.Derived.ErrorOverride, ErrorIndex: idx}
	}

	st := e.store(def.StoreRef)
	if st == nil {
		status := gosnmp.GenErr
		return Outcome{ErrorStatus: status, ErrorIndex: 1}
	}

	var out Outcome
	switch req.PDUType {
	case models.PDUGetRequest:
		out = e.doGet(req, def, st, resolver)
	case models.PDUGetNextRequest:
		out = e.doGetNext(req, def, st, resolver)
	case models.PDUGetBulkRequest:
		out = e.doGetBulk(req, def, st, resolver, limits)
	case models.PDUSetRequest:
		out = e.doSet(req, def, st)
	default:
		out = Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: 1}
	}

	if req.Derived.DropDecision && req.Derived.DropSide == "response" {
		out.Drop = true
		out.DropSide = "response"
	}
	return out
}

func (e *Engine) effectiveGet(req *models.RequestContext, def *models.Context, st *store.Store, oid models.OID, resolver *agentctx.Resolver) (gosnmp.Asn1BER, any, error) {
	if agentctx.IsDenied(def, oid) {
		return gosnmp.NoSuchObject, nil, nil
	}
	if rec, ok := resolver.Overlay(def.Name, oid); ok {
		return rec.Type, rec.Value, nil
	}
	return st.Get(req, oid)
}

func (e *Engine) doGet(req *models.RequestContext, def *models.Context, st *store.Store, resolver *agentctx.Resolver) Outcome {
	varbinds := make([]wire.DecodedVarBind, len(req.Varbinds))
	for i, vb := range req.Varbinds {
		oid, err := models.ParseOID(vb.Name)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		if agentctx.IsDenied(def, oid) {
			return Outcome{ErrorStatus: gosnmp.NoAccess, ErrorIndex: i + 1}
		}
		if override, ok := req.Derived.BoundaryOverrides[i]; ok {
			varbinds[i] = wire.DecodedVarBind{OID: oid, Type: override}
			continue
		}
		typ, val, err := e.effectiveGet(req, def, st, oid, resolver)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		if req.Version == gosnmp.Version1 && isException(typ) {
			return Outcome{ErrorStatus: gosnmp.NoSuchName, ErrorIndex: i + 1}
		}
		varbinds[i] = wire.DecodedVarBind{OID: oid, Type: typ, Value: val}
	}
	return Outcome{Varbinds: varbinds}
}

func (e *Engine) doGetNext(req *models.RequestContext, def *models.Context, st *store.Store, resolver *agentctx.Resolver) Outcome {
	varbinds := make([]wire.DecodedVarBind, len(req.Varbinds))
	for i, vb := range req.Varbinds {
		oid, err := models.ParseOID(vb.Name)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		if override, ok := req.Derived.BoundaryOverrides[i]; ok {
			varbinds[i] = wire.DecodedVarBind{OID: oid, Type: override}
			continue
		}
		next, typ, val, err := e.nextSkippingDenied(req, def, st, oid)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		if req.Version == gosnmp.Version1 && typ == gosnmp.EndOfMibView {
			return Outcome{ErrorStatus: gosnmp.NoSuchName, ErrorIndex: i + 1}
		}
		varbinds[i] = wire.DecodedVarBind{OID: next, Type: typ, Value: val}
	}
	return Outcome{Varbinds: varbinds}
}

// nextSkippingDenied walks forward past any OID covered by a denied
// pattern, so a walk never surfaces a NoAccess varbind — it simply skips
// past the denied subtree as the contract requires.
func (e *Engine) nextSkippingDenied(req *models.RequestContext, def *models.Context, st *store.Store, start models.OID) (models.OID, gosnmp.Asn1BER, any, error) {
	oid := start
	for i := 0; i < 10000; i++ {
		rec, typ, val, err := st.Next(req, oid)
		if err != nil {
			return nil, 0, nil, err
		}
		if typ == gosnmp.EndOfMibView {
			return start, gosnmp.EndOfMibView, nil, nil
		}
		if agentctx.IsDenied(def, rec.OID) {
			oid = rec.OID
			continue
		}
		return rec.OID, typ, val, nil
	}
	return start, gosnmp.EndOfMibView, nil, nil
}

func (e *Engine) doGetBulk(req *models.RequestContext, def *models.Context, st *store.Store, resolver *agentctx.Resolver, limits models.LimitsConfig) Outcome {
	var varbinds []wire.DecodedVarBind

	nonRep := req.NonRepeaters
	if nonRep > len(req.Varbinds) {
		nonRep = len(req.Varbinds)
	}
	for i := 0; i < nonRep; i++ {
		oid, err := models.ParseOID(req.Varbinds[i].Name)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		next, typ, val, err := e.nextSkippingDenied(req, def, st, oid)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		varbinds = append(varbinds, wire.DecodedVarBind{OID: next, Type: typ, Value: val})
	}

	maxRep := req.MaxRepetitions
	repCeiling := limits.MaxRepetitionsCap
	if repCeiling > 0 && maxRep > repCeiling {
		maxRep = repCeiling
	}
	budget := limits.PDUMaxBytes
	if budget <= 0 {
		budget = 1472
	}
	used := estimateSize(varbinds)

	for i := nonRep; i < len(req.Varbinds); i++ {
		oid, err := models.ParseOID(req.Varbinds[i].Name)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		cur := oid
		for r := 0; r < maxRep; r++ {
			next, typ, val, err := e.nextSkippingDenied(req, def, st, cur)
			if err != nil {
				return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
			}
			if typ == gosnmp.EndOfMibView {
				varbinds = append(varbinds, wire.DecodedVarBind{OID: cur, Type: gosnmp.EndOfMibView})
				break
			}
			vb := wire.DecodedVarBind{OID: next, Type: typ, Value: val}
			size := estimateVarbindSize(vb)
			if used+size > budget {
				return Outcome{Varbinds: varbinds}
			}
			used += size
			varbinds = append(varbinds, vb)
			cur = next
		}
	}
	return Outcome{Varbinds: varbinds}
}

func (e *Engine) doSet(req *models.RequestContext, def *models.Context, st *store.Store) Outcome {
	oids := make([]models.OID, len(req.Varbinds))

	// Phase 1: validate every varbind — access, then type/writability/value
	// domain via the Store — before any commit. Nothing is written here, so
	// a later varbind's rejection never leaves an earlier one visible.
	for i, vb := range req.Varbinds {
		oid, err := models.ParseOID(vb.Name)
		if err != nil {
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
		oids[i] = oid
		if agentctx.IsDenied(def, oid) {
			return Outcome{ErrorStatus: gosnmp.NoAccess, ErrorIndex: i + 1}
		}
		switch st.Validate(req, oid, vb.Value) {
		case store.SetOK:
		case store.SetWrongType:
			return Outcome{ErrorStatus: gosnmp.WrongType, ErrorIndex: i + 1}
		case store.SetNotWritable:
			return Outcome{ErrorStatus: gosnmp.NotWritable, ErrorIndex: i + 1}
		default:
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
	}

	// Phase 2: commit, snapshotting each prior value before overwriting it
	// so a mid-PDU failure can be undone in reverse order. Phase 1 already
	// rejected every access/type/writability problem, so only a resource
	// failure in the commit itself (e.g. a durability sink write) reaches
	// this loop.
	priorValues := make([]any, len(oids))
	committed := make([]int, 0, len(oids))
	for i, oid := range oids {
		_, priorValues[i], _ = st.Get(req, oid)
		result := st.Set(req, oid, req.Varbinds[i].Value)
		switch result {
		case store.SetOK:
			committed = append(committed, i)
		case store.SetResourceUnavailable:
			if !e.undo(req, st, oids, priorValues, committed) {
				return Outcome{ErrorStatus: gosnmp.UndoFailed, ErrorIndex: i + 1}
			}
			return Outcome{ErrorStatus: gosnmp.ResourceUnavailable, ErrorIndex: i + 1}
		default:
			if !e.undo(req, st, oids, priorValues, committed) {
				return Outcome{ErrorStatus: gosnmp.UndoFailed, ErrorIndex: i + 1}
			}
			return Outcome{ErrorStatus: gosnmp.GenErr, ErrorIndex: i + 1}
		}
	}

	varbinds := make([]wire.DecodedVarBind, len(req.Varbinds))
	for i, oid := range oids {
		typ, val, _ := st.Get(req, oid)
		varbinds[i] = wire.DecodedVarBind{OID: oid, Type: typ, Value: val}
	}
	return Outcome{Varbinds: varbinds}
}

// undo reverts every index in committed, in reverse order, by writing each
// OID's pre-commit value back through Set. It reports false only when a
// reversal write itself fails, the one case that surfaces as undoFailed
// rather than the PDU's original error status.
func (e *Engine) undo(req *models.RequestContext, st *store.Store, oids []models.OID, priorValues []any, committed []int) bool {
	for i := len(committed) - 1; i >= 0; i-- {
		idx := committed[i]
		if st.Set(req, oids[idx], priorValues[idx]) != store.SetOK {
			return false
		}
	}
	return true
}

func isException(typ gosnmp.Asn1BER) bool {
	return typ == gosnmp.NoSuchObject || typ == gosnmp.NoSuchInstance || typ == gosnmp.EndOfMibView
}

func estimateSize(varbinds []wire.DecodedVarBind) int {
	total := 0
	for _, vb := range varbinds {
		total += estimateVarbindSize(vb)
	}
	return total
}

// estimateVarbindSize returns the exact wire size of one varbind's BER
// encoding (OID TLV, value TLV, and the SEQUENCE wrapper around them), so
// the GetBulk byte-cap check reflects what EncodeResponsePDU will actually
// produce rather than undercounting OID overhead. EncodeVarBind does not
// error for any type/value pair doGetBulk constructs (the exception types —
// NoSuchObject, NoSuchInstance, EndOfMibView — encode fine with a nil
// value), so the fallback below only guards against a future caller passing
// something encodable never anticipates.
func estimateVarbindSize(vb wire.DecodedVarBind) int {
	encoded, err := wire.EncodeVarBind(vb.OID, vb.Type, vb.Value)
	if err != nil {
		return 32 + len(vb.OID)*2
	}
	return len(encoded)
}
