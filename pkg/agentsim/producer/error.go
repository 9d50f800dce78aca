package producer

import (
	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// ErrorProducer signals a fixed SNMP errorStatus on every read instead of
// returning a value. Producers never throw to express SNMP-level errors;
// they set ctx.Derived.ErrorOverride and the Protocol Engine turns that into
// the right error PDU.
type ErrorProducer struct {
	Status gosnmp.SNMPError
}

// NewErrorProducer creates a producer that always signals status.
func NewErrorProducer(status gosnmp.SNMPError) *ErrorProducer {
	return &ErrorProducer{Status: status}
}

// Read implements Producer.
func (e *ErrorProducer) Read(ctx *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error) {
	if ctx.Derived.ErrorOverride == nil {
		status := e.Status
		ctx.Derived.ErrorOverride = &status
	}
	return rec.Type, nil, nil
}

// Validate implements Writer. An ErrorProducer never accepts a Set, so
// Phase 1 rejects it before anything downstream is committed.
func (e *ErrorProducer) Validate(_ *models.RequestContext, _ models.Record, _ any) error {
	return ErrNotWritable
}

// Write implements Writer with the same always-fail behavior.
func (e *ErrorProducer) Write(ctx *models.RequestContext, _ models.Record, _ any) error {
	if ctx.Derived.ErrorOverride == nil {
		status := e.Status
		ctx.Derived.ErrorOverride = &status
	}
	return ErrNotWritable
}
