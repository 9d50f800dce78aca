// Package models holds the data types shared across the agent simulator:
// OIDs, records, contexts, request state, USM sessions, and the
// configuration schema decoded by pkg/agentsim/config.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// OID is an immutable Object Identifier: a dotted sequence of non-negative
// integers. Two OIDs compare lexicographically, arc by arc, exactly as SNMP
// requires for GetNext/GetBulk walks.
type OID []uint32

// ParseOID parses a dotted string such as "1.3.6.1.2.1.1.1.0" into an OID.
// A leading dot is tolerated (the on-wire convention used throughout the
// record file format).
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, fmt.Errorf("models: empty oid")
	}
	parts := strings.Split(s, ".")
	oid := make(OID, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("models: invalid oid arc %q in %q: %w", p, s, err)
		}
		oid[i] = uint32(n)
	}
	return oid, nil
}

// MustParseOID panics on a malformed OID. Reserved for fixed literals in
// tests and built-in tables, never for input parsed off the wire.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the OID in dotted form, e.g. "1.3.6.1.2.1.1.1.0".
func (o OID) String() string {
	parts := make([]string, len(o))
	for i, arc := range o {
		parts[i] = strconv.FormatUint(uint64(arc), 10)
	}
	return strings.Join(parts, ".")
}

// Clone returns an independent copy so callers can mutate the result without
// aliasing the receiver's backing array.
func (o OID) Clone() OID {
	c := make(OID, len(o))
	copy(c, o)
	return c
}

// Compare returns -1, 0, or 1 as o is lexicographically less than, equal to,
// or greater than other. Shorter is less than longer when one is a strict
// prefix of the other, matching BER OID ordering.
func (o OID) Compare(other OID) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if o[i] != other[i] {
			if o[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	default:
		return 0
	}
}

// Less reports whether o sorts strictly before other.
func (o OID) Less(other OID) bool { return o.Compare(other) < 0 }

// Equal reports whether o and other name the same OID.
func (o OID) Equal(other OID) bool { return o.Compare(other) == 0 }

// HasPrefix reports whether prefix is an ancestor of (or equal to) o.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i := range prefix {
		if o[i] != prefix[i] {
			return false
		}
	}
	return true
}
