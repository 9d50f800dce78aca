package transport

import (
	"fmt"
	"math/rand"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/usm"
	"github.com/mocksnmp/agentsim/pkg/agentsim/wire"
)

// securityOutcome carries everything decodeV3 recovers about an incoming
// v3 datagram once USM has had a chance to authenticate and decrypt it.
type securityOutcome struct {
	// report is set when the message must be answered with an
	// unauthenticated/unencrypted Report PDU instead of being processed
	// (unknown user, bad digest, or a time window failure) or discarded
	// outright (discard is true) when even a Report cannot be sent.
	report   bool
	discard  bool
	envelope wire.V3ParsedEnvelope
	session  *models.USMSession

	contextEngineID string
	contextName     string
	msg             wire.DecodedMessage
}

const (
	flagAuth       = 0x01
	flagPriv       = 0x02
	flagReportable = 0x04
)

// authenticateAndDecrypt verifies the USM digest (if the message claims
// authentication) and decrypts the scoped PDU (if it claims privacy),
// against the session usm.Users has on file for env.UserName.
func authenticateAndDecrypt(datagram []byte, env wire.V3ParsedEnvelope, users *usm.Users, selfEngine *usm.Engine) securityOutcome {
	reportable := env.Flags&flagReportable != 0

	if env.UserName == "" {
		// Discovery probe: reveal engineID/boots/time, unauthenticated.
		return securityOutcome{report: true, envelope: env}
	}

	session, ok := users.Get(env.UserName)
	if !ok {
		return securityOutcome{report: reportable, discard: !reportable, envelope: env}
	}

	wantsAuth := env.Flags&flagAuth != 0
	if wantsAuth != (session.AuthProto != gosnmp.NoAuth) {
		return securityOutcome{report: reportable, discard: !reportable, envelope: env, session: session}
	}

	if wantsAuth {
		zeroed := make([]byte, len(datagram))
		copy(zeroed, datagram)
		for i := 0; i < len(env.AuthParams); i++ {
			zeroed[env.AuthParamsOffset+i] = 0
		}
		ok, err := usm.VerifyAuthentication(session.AuthProto, []byte(session.AuthKey), zeroed, env.AuthParams)
		if err != nil || !ok {
			return securityOutcome{report: reportable, discard: !reportable, envelope: env, session: session}
		}
		if err := selfEngine.CheckTimeWindow(env.EngineBoots, env.EngineTime); err != nil {
			return securityOutcome{report: true, envelope: env, session: session}
		}
	}

	plaintext := env.ScopedPDU
	wantsPriv := env.Flags&flagPriv != 0
	if wantsPriv != (session.PrivProto != gosnmp.NoPriv) {
		return securityOutcome{report: reportable, discard: !reportable, envelope: env, session: session}
	}
	if wantsPriv {
		pt, err := usm.Decrypt(session.PrivProto, []byte(session.PrivKey), env.EngineBoots, env.EngineTime, env.PrivParams, env.ScopedPDU)
		if err != nil {
			return securityOutcome{report: reportable, discard: !reportable, envelope: env, session: session}
		}
		plaintext = pt
	}

	ctxEngineID, ctxName, msg, err := wire.DecodeScopedPDU(plaintext)
	if err != nil {
		return securityOutcome{discard: true, envelope: env, session: session}
	}

	return securityOutcome{
		envelope:        env,
		session:         session,
		contextEngineID: ctxEngineID,
		contextName:     ctxName,
		msg:             msg,
	}
}

// requestFromV1V2c folds a decoded v1/v2c message into the RequestContext
// the Protocol Engine consumes; requestFromV3 does the same for an already
// USM-verified v3 scoped PDU.
func requestFromV1V2c(msg wire.DecodedMessage) *models.RequestContext {
	req := models.NewRequestContext()
	req.Version = msg.Version
	req.Community = msg.Community
	req.PDUType = msg.PDUType
	req.RequestID = msg.RequestID
	req.NonRepeaters = msg.NonRepeaters
	req.MaxRepetitions = msg.MaxRepetitions
	req.Varbinds = toSnmpPDUs(msg.Varbinds)
	return req
}

func requestFromV3(out securityOutcome) *models.RequestContext {
	req := models.NewRequestContext()
	req.Version = gosnmp.Version3
	req.V3User = out.envelope.UserName
	req.V3EngineID = out.envelope.EngineID
	req.V3EngineBoots = out.envelope.EngineBoots
	req.V3EngineTime = out.envelope.EngineTime
	req.V3ContextName = out.contextName
	req.V3Authenticated = out.envelope.Flags&flagAuth != 0
	req.ContextName = out.contextName
	req.PDUType = out.msg.PDUType
	req.RequestID = out.msg.RequestID
	req.NonRepeaters = out.msg.NonRepeaters
	req.MaxRepetitions = out.msg.MaxRepetitions
	req.Varbinds = toSnmpPDUs(out.msg.Varbinds)
	return req
}

func toSnmpPDUs(vbs []wire.DecodedVarBind) []gosnmp.SnmpPDU {
	out := make([]gosnmp.SnmpPDU, len(vbs))
	for i, vb := range vbs {
		out[i] = gosnmp.SnmpPDU{Name: vb.OID.String(), Type: vb.Type, Value: vb.Value}
	}
	return out
}

// encodeV3Response renders an authenticated/encrypted Response or Report
// for a v3 exchange. selfEngine supplies this agent's own engineBoots/Time,
// which are what gets carried on the wire for messages this agent sends.
func encodeV3Response(env wire.V3ParsedEnvelope, session *models.USMSession, selfEngine *usm.Engine, contextEngineID, contextName string, pduTag gosnmp.Asn1BER, requestID int32, errorStatus, errorIndex int, varbinds []wire.DecodedVarBind) ([]byte, error) {
	scopedPlain, err := wire.BuildScopedPDU(contextEngineID, contextName, pduTag, requestID, errorStatus, errorIndex, varbinds)
	if err != nil {
		return nil, err
	}

	wireEnv := wire.V3Envelope{
		MsgID:       env.MsgID,
		MsgMaxSize:  65507,
		Flags:       env.Flags &^ flagReportable,
		EngineID:    selfEngine.ID(),
		EngineBoots: selfEngine.Boots(),
		EngineTime:  selfEngine.Time(),
		UserName:    env.UserName,
	}

	hasAuth := session != nil && session.AuthProto != gosnmp.NoAuth && env.Flags&flagAuth != 0
	hasPriv := session != nil && session.PrivProto != gosnmp.NoPriv && env.Flags&flagPriv != 0

	if hasPriv {
		salt := rand.Uint64()
		ct, privParams, err := usm.Encrypt(session.PrivProto, []byte(session.PrivKey), selfEngine.Boots(), selfEngine.Time(), salt, scopedPlain)
		if err != nil {
			return nil, fmt.Errorf("transport: encrypting v3 response: %w", err)
		}
		wireEnv.ScopedPDU = ct
		wireEnv.ScopedEncrypted = true
		wireEnv.PrivParams = privParams
	} else {
		wireEnv.ScopedPDU = scopedPlain
	}

	if hasAuth {
		wireEnv.AuthParamsLen = 12
	}

	msgBytes, authOffset, err := wire.EncodeV3Message(wireEnv)
	if err != nil {
		return nil, err
	}
	if hasAuth {
		digest, err := usm.Authenticate(session.AuthProto, []byte(session.AuthKey), msgBytes)
		if err != nil {
			return nil, fmt.Errorf("transport: authenticating v3 response: %w", err)
		}
		copy(msgBytes[authOffset:authOffset+12], digest)
	}
	return msgBytes, nil
}
