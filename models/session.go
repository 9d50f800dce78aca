package models

import "github.com/gosnmp/gosnmp"

// USMSession holds the per-user SNMPv3 security state: credentials,
// protocols, and the engine identity/time the user has last authenticated
// against. EngineBoots/EngineTime are process-global in practice (see
// pkg/agentsim/usm.Engine) but are mirrored here for session bookkeeping.
type USMSession struct {
	Username string

	AuthProto gosnmp.SnmpV3AuthProtocol
	AuthKey   string // localized key, derived from the configured passphrase

	PrivProto gosnmp.SnmpV3PrivProtocol
	PrivKey   string // localized key

	AllowedContexts []string

	EngineID    string
	EngineBoots uint32
	EngineTime  uint32
}

// SecurityLevel reports the effective SNMPv3 msgFlags for this session.
func (s *USMSession) SecurityLevel() gosnmp.SnmpV3MsgFlags {
	hasAuth := s.AuthProto != gosnmp.NoAuth
	hasPriv := s.PrivProto != gosnmp.NoPriv
	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}
