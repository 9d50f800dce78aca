package wire

import (
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// pduKindToTag and tagToPDUKind translate between the internal PDUKind
// enum and the BER context tag gosnmp already assigns each PDU type.
var pduKindToTag = map[models.PDUKind]gosnmp.Asn1BER{
	models.PDUGetRequest:     gosnmp.GetRequest,
	models.PDUGetNextRequest: gosnmp.GetNextRequest,
	models.PDUGetBulkRequest: gosnmp.GetBulkRequest,
	models.PDUSetRequest:     gosnmp.SetRequest,
	models.PDUResponse:       gosnmp.GetResponse,
	models.PDUReport:         gosnmp.Report,
}

var tagToPDUKind = func() map[gosnmp.Asn1BER]models.PDUKind {
	m := make(map[gosnmp.Asn1BER]models.PDUKind, len(pduKindToTag))
	for k, v := range pduKindToTag {
		m[v] = k
	}
	return m
}()

// DecodedMessage is a fully parsed incoming datagram, version-agnostic.
type DecodedMessage struct {
	Version        gosnmp.SnmpVersion
	Community      string // v1/v2c only
	PDUType        models.PDUKind
	RequestID      int32
	NonRepeaters   int
	MaxRepetitions int
	Varbinds       []DecodedVarBind

	// v3 fields, populated only when Version == gosnmp.Version3.
	V3MsgID        int32
	V3SecurityName string // USM username
	V3ContextName  string
	V3EngineID     string
	V3EngineBoots  uint32
	V3EngineTime   uint32
}

// PDUTag returns the BER context tag for a PDUKind, for callers outside
// this package building a message by hand (e.g. v3 Report/Response
// encoding in the transport layer).
func PDUTag(kind models.PDUKind) (gosnmp.Asn1BER, bool) {
	tag, ok := pduKindToTag[kind]
	return tag, ok
}

// PeekVersion reads just enough of a raw datagram to learn its SNMP
// version, letting a caller choose between the v1/v2c and v3 decode paths
// before committing to either.
func PeekVersion(datagram []byte) (gosnmp.SnmpVersion, error) {
	outer, err := decodeTLV(datagram)
	if err != nil {
		return 0, fmt.Errorf("wire: outer message: %w", err)
	}
	versionT, err := decodeTLV(outer.Value)
	if err != nil {
		return 0, fmt.Errorf("wire: version: %w", err)
	}
	versionNum, err := decodeInt(versionT.Value)
	if err != nil {
		return 0, fmt.Errorf("wire: version value: %w", err)
	}
	return gosnmp.SnmpVersion(versionNum), nil
}

// DecodeMessage parses a raw UDP datagram into a DecodedMessage. v3 parsing
// decodes only the unauthenticated, unencrypted envelope shape — USM
// authentication/decryption of the scoped PDU is performed by the usm
// package before this function's v3 varbind fields are trusted.
func DecodeMessage(datagram []byte) (DecodedMessage, error) {
	outer, err := decodeTLV(datagram)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: outer message: %w", err)
	}
	if outer.Tag != gosnmp.Sequence {
		return DecodedMessage{}, fmt.Errorf("wire: outer message tag 0x%x, want SEQUENCE", byte(outer.Tag))
	}

	versionT, err := decodeTLV(outer.Value)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: version: %w", err)
	}
	versionNum, err := decodeInt(versionT.Value)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: version value: %w", err)
	}
	version := gosnmp.SnmpVersion(versionNum)

	switch version {
	case gosnmp.Version1, gosnmp.Version2c:
		return decodeV1orV2cBody(version, versionT.Rest)
	case gosnmp.Version3:
		return decodeV3Body(versionT.Rest)
	default:
		return DecodedMessage{}, fmt.Errorf("wire: unsupported SNMP version %d", versionNum)
	}
}

func decodeV1orV2cBody(version gosnmp.SnmpVersion, rest []byte) (DecodedMessage, error) {
	communityT, err := decodeTLV(rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: community: %w", err)
	}
	pduT, err := decodeTLV(communityT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: pdu: %w", err)
	}
	msg, err := decodePDUBody(pduT.Tag, pduT.Value)
	if err != nil {
		return DecodedMessage{}, err
	}
	msg.Version = version
	msg.Community = string(communityT.Value)
	return msg, nil
}

// decodeV3Body parses the globalData/securityParameters envelope and the
// plaintext scoped PDU shape. Authenticated/encrypted messages must be
// handed to the usm package to recover the scoped PDU bytes before this
// is called on the recovered plaintext.
func decodeV3Body(rest []byte) (DecodedMessage, error) {
	globalT, err := decodeTLV(rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 globalData: %w", err)
	}
	msgID, boots, err := decodeV3Globals(globalT.Value)
	if err != nil {
		return DecodedMessage{}, err
	}

	secParamsT, err := decodeTLV(globalT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 securityParameters: %w", err)
	}
	engineID, engineBoots, engineTime, userName, err := decodeUSMSecurityParameters(secParamsT.Value)
	if err != nil {
		return DecodedMessage{}, err
	}
	_ = boots

	scopedT, err := decodeTLV(secParamsT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 scopedPDU: %w", err)
	}
	if scopedT.Tag != gosnmp.Sequence {
		return DecodedMessage{}, fmt.Errorf("wire: v3 scopedPDU tag 0x%x, want SEQUENCE (encrypted payloads must be decrypted by usm before DecodeMessage)", byte(scopedT.Tag))
	}

	ctxEngineT, err := decodeTLV(scopedT.Value)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 contextEngineID: %w", err)
	}
	ctxNameT, err := decodeTLV(ctxEngineT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 contextName: %w", err)
	}
	pduT, err := decodeTLV(ctxNameT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: v3 pdu: %w", err)
	}
	msg, err := decodePDUBody(pduT.Tag, pduT.Value)
	if err != nil {
		return DecodedMessage{}, err
	}
	msg.Version = gosnmp.Version3
	msg.V3MsgID = msgID
	msg.V3SecurityName = userName
	msg.V3ContextName = string(ctxNameT.Value)
	msg.V3EngineID = engineID
	msg.V3EngineBoots = engineBoots
	msg.V3EngineTime = engineTime
	return msg, nil
}

// DecodeScopedPDU parses a plaintext scopedPDU SEQUENCE { contextEngineID
// OCTET STRING, contextName OCTET STRING, pdu } — the payload USM hands back
// after authenticating and, if needed, decrypting an incoming v3 message.
func DecodeScopedPDU(body []byte) (contextEngineID, contextName string, msg DecodedMessage, err error) {
	scopedT, err := decodeTLV(body)
	if err != nil {
		return "", "", DecodedMessage{}, fmt.Errorf("wire: scopedPDU: %w", err)
	}
	if scopedT.Tag != gosnmp.Sequence {
		return "", "", DecodedMessage{}, fmt.Errorf("wire: scopedPDU tag 0x%x, want SEQUENCE", byte(scopedT.Tag))
	}
	ctxEngineT, err := decodeTLV(scopedT.Value)
	if err != nil {
		return "", "", DecodedMessage{}, fmt.Errorf("wire: scopedPDU contextEngineID: %w", err)
	}
	ctxNameT, err := decodeTLV(ctxEngineT.Rest)
	if err != nil {
		return "", "", DecodedMessage{}, fmt.Errorf("wire: scopedPDU contextName: %w", err)
	}
	pduT, err := decodeTLV(ctxNameT.Rest)
	if err != nil {
		return "", "", DecodedMessage{}, fmt.Errorf("wire: scopedPDU pdu: %w", err)
	}
	m, err := decodePDUBody(pduT.Tag, pduT.Value)
	if err != nil {
		return "", "", DecodedMessage{}, err
	}
	return string(ctxEngineT.Value), string(ctxNameT.Value), m, nil
}

// decodeV3Globals parses the leading msgID/msgMaxSize fields of the
// msgGlobalData SEQUENCE; msgFlags and msgSecurityModel are not needed once
// the usm package has already decided how to authenticate/decrypt this
// message, so they are left unparsed.
func decodeV3Globals(body []byte) (msgID int32, msgMaxSize int64, err error) {
	idT, err := decodeTLV(body)
	if err != nil {
		return 0, 0, fmt.Errorf("wire: v3 msgID: %w", err)
	}
	id, err := decodeInt(idT.Value)
	if err != nil {
		return 0, 0, err
	}
	sizeT, err := decodeTLV(idT.Rest)
	if err != nil {
		return 0, 0, fmt.Errorf("wire: v3 msgMaxSize: %w", err)
	}
	size, err := decodeInt(sizeT.Value)
	if err != nil {
		return 0, 0, err
	}
	return int32(id), size, nil
}

// decodeUSMSecurityParameters parses the USM SEQUENCE carried inside the
// OCTET STRING msgSecurityParameters field:
// SEQUENCE { engineID OCTET STRING, engineBoots INTEGER, engineTime INTEGER,
//            userName OCTET STRING, authParams OCTET STRING, privParams OCTET STRING }
func decodeUSMSecurityParameters(body []byte) (engineID string, boots, engineTime uint32, userName string, err error) {
	usmT, err := decodeTLV(body)
	if err != nil {
		return "", 0, 0, "", fmt.Errorf("wire: usm security parameters: %w", err)
	}
	if usmT.Tag != gosnmp.Sequence {
		return "", 0, 0, "", fmt.Errorf("wire: usm security parameters tag 0x%x, want SEQUENCE", byte(usmT.Tag))
	}
	rest := usmT.Value

	engineIDT, err := decodeTLV(rest)
	if err != nil {
		return "", 0, 0, "", err
	}
	bootsT, err := decodeTLV(engineIDT.Rest)
	if err != nil {
		return "", 0, 0, "", err
	}
	bootsVal, err := decodeInt(bootsT.Value)
	if err != nil {
		return "", 0, 0, "", err
	}
	timeT, err := decodeTLV(bootsT.Rest)
	if err != nil {
		return "", 0, 0, "", err
	}
	timeVal, err := decodeInt(timeT.Value)
	if err != nil {
		return "", 0, 0, "", err
	}
	userT, err := decodeTLV(timeT.Rest)
	if err != nil {
		return "", 0, 0, "", err
	}
	return string(engineIDT.Value), uint32(bootsVal), uint32(timeVal), string(userT.Value), nil
}

// decodePDUBody parses the common PDU body shared by all PDU types:
// SEQUENCE { request-id INTEGER, error-status INTEGER, error-index INTEGER,
//            variable-bindings SEQUENCE OF VarBind }
// GetBulkRequest reuses error-status/error-index as non-repeaters/max-repetitions.
func decodePDUBody(tag gosnmp.Asn1BER, body []byte) (DecodedMessage, error) {
	kind, ok := tagToPDUKind[tag]
	if !ok {
		return DecodedMessage{}, fmt.Errorf("wire: unrecognized PDU tag 0x%x", byte(tag))
	}

	reqIDT, err := decodeTLV(body)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: request-id: %w", err)
	}
	reqID, err := decodeInt(reqIDT.Value)
	if err != nil {
		return DecodedMessage{}, err
	}

	field2T, err := decodeTLV(reqIDT.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: error-status/non-repeaters: %w", err)
	}
	field2, err := decodeInt(field2T.Value)
	if err != nil {
		return DecodedMessage{}, err
	}

	field3T, err := decodeTLV(field2T.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: error-index/max-repetitions: %w", err)
	}
	field3, err := decodeInt(field3T.Value)
	if err != nil {
		return DecodedMessage{}, err
	}

	vbListT, err := decodeTLV(field3T.Rest)
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("wire: variable-bindings: %w", err)
	}
	if vbListT.Tag != gosnmp.Sequence {
		return DecodedMessage{}, fmt.Errorf("wire: variable-bindings tag 0x%x, want SEQUENCE", byte(vbListT.Tag))
	}

	var varbinds []DecodedVarBind
	remaining := vbListT.Value
	for len(remaining) > 0 {
		vbT, err := decodeTLV(remaining)
		if err != nil {
			return DecodedMessage{}, fmt.Errorf("wire: varbind entry: %w", err)
		}
		vb, err := DecodeVarBind(vbT.Value)
		if err != nil {
			return DecodedMessage{}, err
		}
		varbinds = append(varbinds, vb)
		remaining = vbT.Rest
	}

	msg := DecodedMessage{
		PDUType:   kind,
		RequestID: int32(reqID),
		Varbinds:  varbinds,
	}
	if kind == models.PDUGetBulkRequest {
		msg.NonRepeaters = int(field2)
		msg.MaxRepetitions = int(field3)
	}
	return msg, nil
}

// EncodeResponsePDU renders a full v1/v2c Response message for the given
// community, request ID, error status/index, and resolved varbinds.
func EncodeResponsePDU(version gosnmp.SnmpVersion, community string, requestID int32, errorStatus, errorIndex int, varbinds []DecodedVarBind) ([]byte, error) {
	vbBytes, err := encodeVarBindList(varbinds)
	if err != nil {
		return nil, err
	}
	pduBody := append(encodeTLV(gosnmp.Integer, encodeInt(int64(requestID))),
		append(encodeTLV(gosnmp.Integer, encodeInt(int64(errorStatus))),
			append(encodeTLV(gosnmp.Integer, encodeInt(int64(errorIndex))), vbBytes...)...)...)
	pdu := encodeTLV(gosnmp.GetResponse, pduBody)

	body := append(encodeTLV(gosnmp.Integer, encodeInt(int64(version))),
		append(encodeTLV(gosnmp.OctetString, []byte(community)), pdu...)...)
	return encodeTLV(gosnmp.Sequence, body), nil
}

// EncodeRequestPDU renders a full v1/v2c request message for the given PDU
// tag, request ID, and second/third integer fields (error-status/error-index
// for most PDU types, non-repeaters/max-repetitions for GetBulkRequest).
// Exposed alongside EncodeResponsePDU for test harnesses and tooling that
// need to drive the simulator as a client would, without duplicating this
// package's TLV plumbing.
func EncodeRequestPDU(version gosnmp.SnmpVersion, community string, pduTag gosnmp.Asn1BER, requestID int32, field2, field3 int, varbinds []DecodedVarBind) ([]byte, error) {
	vbBytes, err := encodeVarBindList(varbinds)
	if err != nil {
		return nil, err
	}
	pduBody := concatBytes(
		encodeTLV(gosnmp.Integer, encodeInt(int64(requestID))),
		encodeTLV(gosnmp.Integer, encodeInt(int64(field2))),
		encodeTLV(gosnmp.Integer, encodeInt(int64(field3))),
		vbBytes,
	)
	pdu := encodeTLV(pduTag, pduBody)

	body := concatBytes(
		encodeTLV(gosnmp.Integer, encodeInt(int64(version))),
		encodeTLV(gosnmp.OctetString, []byte(community)),
		pdu,
	)
	return encodeTLV(gosnmp.Sequence, body), nil
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func encodeVarBindList(varbinds []DecodedVarBind) ([]byte, error) {
	var body []byte
	for _, vb := range varbinds {
		enc, err := EncodeVarBind(vb.OID, vb.Type, vb.Value)
		if err != nil {
			return nil, err
		}
		body = append(body, enc...)
	}
	return encodeTLV(gosnmp.Sequence, body), nil
}
