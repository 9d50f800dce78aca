// Package producer implements the Value Producers: pluggable "variation
// modules" attached to a Record by tag at load time. Each produces a value
// on demand; some also accept writes.
package producer

import (
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// Producer computes a record's value at read time, given the request that
// triggered the read. Implementations must be safe for concurrent use.
type Producer interface {
	// Read returns the ASN.1 type and value to report for rec, or an error
	// if the read itself cannot be satisfied (rare — most producers signal
	// SNMP-level errors via ctx.Derived.ErrorOverride instead of a Go error).
	Read(ctx *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error)
}

// Writer is implemented by producers that accept Set operations.
type Writer interface {
	// Validate reports whether newValue would be accepted by Write, without
	// applying any mutation or side effect (a durability append, a stored
	// value swap, …). It returns the same sentinel errors Write does for
	// type/writability/domain problems; a failure here never needs undoing
	// because nothing has been committed yet.
	Validate(ctx *models.RequestContext, rec models.Record, newValue any) error

	// Write validates and applies newValue. Returning an error that wraps
	// one of the sentinel errors below lets the Protocol Engine map it
	// to the correct SNMP errorStatus.
	Write(ctx *models.RequestContext, rec models.Record, newValue any) error
}

// Sentinel errors Write implementations return to signal a specific SNMP
// errorStatus rather than a generic genErr.
var (
	ErrWrongType            = fmt.Errorf("producer: wrong type")
	ErrNotWritable          = fmt.Errorf("producer: not writable")
	ErrResourceUnavailable  = fmt.Errorf("producer: resource unavailable")
)

// Registry resolves a Record's ProducerRef to a live Producer instance.
// Built once at config load and swapped wholesale on reload, matching the
// Record Store's own copy-on-write discipline.
type Registry struct {
	producers map[string]Producer
}

// NewRegistry creates an empty Registry. Use Register to populate it before
// handing it to a Store.
func NewRegistry() *Registry {
	return &Registry{producers: make(map[string]Producer)}
}

// Register binds ref to p. Registering the same ref twice replaces the
// previous binding.
func (r *Registry) Register(ref string, p Producer) {
	r.producers[ref] = p
}

// Get resolves ref to a Producer. ok is false when ref is unset or unknown,
// in which case the caller should fall back to the Record's static value.
func (r *Registry) Get(ref string) (Producer, bool) {
	if ref == "" {
		return nil, false
	}
	p, ok := r.producers[ref]
	return p, ok
}
