package models

import (
	"net"
	"time"

	"github.com/gosnmp/gosnmp"
)

// PDUKind identifies the SNMP operation a RequestContext carries.
type PDUKind int

const (
	PDUUnknown PDUKind = iota
	PDUGetRequest
	PDUGetNextRequest
	PDUGetBulkRequest
	PDUSetRequest
	PDUResponse
	PDUReport
)

// String renders the PDU kind for logging.
func (k PDUKind) String() string {
	switch k {
	case PDUGetRequest:
		return "GetRequest"
	case PDUGetNextRequest:
		return "GetNextRequest"
	case PDUGetBulkRequest:
		return "GetBulkRequest"
	case PDUSetRequest:
		return "SetRequest"
	case PDUResponse:
		return "Response"
	case PDUReport:
		return "Report"
	default:
		return "Unknown"
	}
}

// DerivedFields are the mutable decisions the Behavior Chain (C4) accumulates
// around a request. Interceptors must treat a non-zero field as already
// decided and skip re-deciding it.
type DerivedFields struct {
	SelectedContext   string
	DelayBudgetMS     int
	DropDecision      bool
	DropSide          string // "request" | "response"
	SubsystemLatency  time.Duration
	ErrorOverride     *gosnmp.SNMPError
	ErrorIndex        int
	RegistrationDrop  bool
	BoundaryOverrides map[int]gosnmp.Asn1BER // varbind index -> exception tag
	ResourceGateHeld  bool
}

// RequestContext carries everything about one inbound PDU from decode to
// final send-or-drop. It is never shared between datagrams.
type RequestContext struct {
	RecvTime   time.Time
	RemoteAddr *net.UDPAddr

	Version   gosnmp.SnmpVersion
	Community string

	// V3 fields, populated only when Version == gosnmp.Version3.
	V3User          string
	V3EngineID      string
	V3EngineBoots   uint32
	V3EngineTime    uint32
	V3ContextName   string
	V3Authenticated bool

	ContextName string

	PDUType        PDUKind
	Varbinds       []gosnmp.SnmpPDU
	RequestID      int32
	NonRepeaters   int
	MaxRepetitions int

	Derived DerivedFields
}

// NewRequestContext builds a RequestContext with its Derived fields
// zero-valued and ready for the Behavior Chain to populate.
func NewRequestContext() *RequestContext {
	return &RequestContext{
		Derived: DerivedFields{
			BoundaryOverrides: make(map[int]gosnmp.Asn1BER),
		},
	}
}

// EffectiveUser returns the principal used for ACL checks: the v3 username
// when present, otherwise the v1/v2c community string.
func (r *RequestContext) EffectiveUser() string {
	if r.Version == gosnmp.Version3 {
		return r.V3User
	}
	return r.Community
}
