package models

import "github.com/gosnmp/gosnmp"

// Record is a single entry in a Record Store: an OID bound to an ASN.1 type
// and a raw value, optionally driven by a named value producer instead of a
// static value.
type Record struct {
	OID OID

	// Type is the ASN.1 tag gosnmp uses on the wire (gosnmp.Integer,
	// gosnmp.OctetString, gosnmp.Counter32, ...). The three exception tags
	// (gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView) never
	// appear stored in a Record Store — they are synthesized by lookups.
	Type gosnmp.Asn1BER

	// Value holds the static payload when ProducerRef is empty. Its
	// concrete Go type depends on Type (string, int, uint32, uint64, OID, ...).
	Value any

	// ProducerRef names a registered producer (see pkg/agentsim/producer)
	// that computes Value dynamically at read time. Empty means static.
	ProducerRef string

	// Writable marks whether Set operations may target this OID at all,
	// independent of what the attached producer allows.
	Writable bool
}

// Clone returns a shallow copy of r with an independently owned OID slice.
func (r Record) Clone() Record {
	r.OID = r.OID.Clone()
	return r
}
