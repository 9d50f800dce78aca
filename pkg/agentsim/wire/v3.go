package wire

import (
	"fmt"

	"github.com/gosnmp/gosnmp"
)

// V3Envelope holds everything needed to render an outgoing SNMPv3 message
// except the authentication digest, which must be computed over the
// rendered bytes and spliced in afterward (RFC 3414 §6.3.1: authParams is
// zeroed during digest computation).
type V3Envelope struct {
	MsgID       int32
	MsgMaxSize  int64
	Flags       gosnmp.SnmpV3MsgFlags
	EngineID    string
	EngineBoots uint32
	EngineTime  uint32
	UserName    string

	AuthParamsLen int // 12 when a auth protocol is in effect, 0 otherwise
	PrivParams    []byte

	// ScopedPDU is the already-built scopedPDU bytes: either the plaintext
	// SEQUENCE{contextEngineID, contextName, pdu} or, when privacy applies,
	// an already-encrypted payload that ScopedEncrypted says to wrap in an
	// OCTET STRING instead of splicing in as a raw SEQUENCE.
	ScopedPDU       []byte
	ScopedEncrypted bool
}

// concatTLV concatenates already-encoded TLV byte slices in order.
func concatTLV(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// EncodeV3Message renders env into a full message. It returns the encoded
// bytes and the byte offset of the authParams OCTET STRING value, so the
// caller can compute an HMAC over the zero-filled bytes and splice the real
// digest in at that offset without re-encoding the whole message.
func EncodeV3Message(env V3Envelope) (msg []byte, authParamsOffset int, err error) {
	globalData := encodeTLV(gosnmp.Sequence, concatTLV(
		encodeTLV(gosnmp.Integer, encodeInt(int64(env.MsgID))),
		encodeTLV(gosnmp.Integer, encodeInt(env.MsgMaxSize)),
		encodeTLV(gosnmp.OctetString, []byte{byte(env.Flags)}),
		encodeTLV(gosnmp.Integer, encodeInt(3)), // USM security model
	))

	usmInner := concatTLV(
		encodeTLV(gosnmp.OctetString, []byte(env.EngineID)),
		encodeTLV(gosnmp.Integer, encodeInt(int64(env.EngineBoots))),
		encodeTLV(gosnmp.Integer, encodeInt(int64(env.EngineTime))),
		encodeTLV(gosnmp.OctetString, []byte(env.UserName)),
	)
	authTag := encodeTLV(gosnmp.OctetString, make([]byte, env.AuthParamsLen))
	authTagPrefixLen := len(authTag) - env.AuthParamsLen
	privTag := encodeTLV(gosnmp.OctetString, env.PrivParams)

	usmSeqValue := concatTLV(usmInner, authTag, privTag)
	usmSeq := encodeTLV(gosnmp.Sequence, usmSeqValue)
	secParams := encodeTLV(gosnmp.OctetString, usmSeq)

	scopedTLV := env.ScopedPDU
	if env.ScopedEncrypted {
		scopedTLV = encodeTLV(gosnmp.OctetString, env.ScopedPDU)
	}

	body := concatTLV(
		encodeTLV(gosnmp.Integer, encodeInt(3)),
		globalData,
		secParams,
		scopedTLV,
	)
	full := encodeTLV(gosnmp.Sequence, body)

	outerPrefixLen := len(full) - len(body)
	secParamsPrefixLen := len(secParams) - len(usmSeq)
	usmSeqPrefixLen := len(usmSeq) - len(usmSeqValue)

	offset := outerPrefixLen +
		len(encodeTLV(gosnmp.Integer, encodeInt(3))) +
		len(globalData) +
		secParamsPrefixLen + usmSeqPrefixLen + len(usmInner) + authTagPrefixLen

	if env.AuthParamsLen > 0 && offset+env.AuthParamsLen > len(full) {
		return nil, 0, fmt.Errorf("wire: authParams offset computation out of range")
	}
	return full, offset, nil
}

// V3ParsedEnvelope is the result of picking an incoming v3 datagram apart
// down to its USM security parameters, without trusting anything inside
// the scoped PDU yet — that still needs authentication and, if privacy is
// in effect, decryption.
type V3ParsedEnvelope struct {
	MsgID       int32
	Flags       gosnmp.SnmpV3MsgFlags
	EngineID    string
	EngineBoots uint32
	EngineTime  uint32
	UserName    string

	AuthParams []byte
	// AuthParamsOffset is the byte offset, within the original datagram
	// passed to ParseV3Envelope, of the authParams OCTET STRING's value
	// bytes. Verifying authentication requires zeroing exactly those bytes
	// in a scratch copy of the datagram before hashing, per RFC 3414
	// §6.3.1 — tracking the offset avoids a byte-search for the field.
	AuthParamsOffset int
	PrivParams       []byte

	// ScopedPDU is the raw scoped-PDU payload: the plaintext SEQUENCE when
	// ScopedEncrypted is false, or the ciphertext carried inside the
	// msgData OCTET STRING when it is true.
	ScopedPDU       []byte
	ScopedEncrypted bool
}

// ParseV3Envelope parses the outer message and USM security parameters of
// an incoming SNMPv3 datagram. It does not touch the scoped PDU's contents.
//
// The AuthParamsOffset computation relies on an invariant of this package's
// decodeTLV chain: every slice it hands back is a tail of the original
// buffer (i.e. buf[k:] for some k, possibly further truncated by length),
// so cap(datagram) - cap(slice) recovers k without any unsafe pointer
// arithmetic or byte-searching.
func ParseV3Envelope(datagram []byte) (V3ParsedEnvelope, error) {
	outer, err := decodeTLV(datagram)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 outer message: %w", err)
	}
	if outer.Tag != gosnmp.Sequence {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 outer message tag 0x%x, want SEQUENCE", byte(outer.Tag))
	}

	versionT, err := decodeTLV(outer.Value)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 version: %w", err)
	}
	versionNum, err := decodeInt(versionT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, err
	}
	if gosnmp.SnmpVersion(versionNum) != gosnmp.Version3 {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: ParseV3Envelope called on non-v3 message (version %d)", versionNum)
	}

	globalT, err := decodeTLV(versionT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 globalData: %w", err)
	}
	msgID, flags, err := decodeV3GlobalsWithFlags(globalT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, err
	}

	secParamsT, err := decodeTLV(globalT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 securityParameters: %w", err)
	}
	usmT, err := decodeTLV(secParamsT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm security parameters: %w", err)
	}
	if usmT.Tag != gosnmp.Sequence {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm security parameters tag 0x%x, want SEQUENCE", byte(usmT.Tag))
	}

	engineIDT, err := decodeTLV(usmT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm engineID: %w", err)
	}
	bootsT, err := decodeTLV(engineIDT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm engineBoots: %w", err)
	}
	bootsVal, err := decodeInt(bootsT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, err
	}
	timeT, err := decodeTLV(bootsT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm engineTime: %w", err)
	}
	timeVal, err := decodeInt(timeT.Value)
	if err != nil {
		return V3ParsedEnvelope{}, err
	}
	userT, err := decodeTLV(timeT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm userName: %w", err)
	}
	authParamsT, err := decodeTLV(userT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm authParams: %w", err)
	}
	privParamsT, err := decodeTLV(authParamsT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: usm privParams: %w", err)
	}

	scopedT, err := decodeTLV(secParamsT.Rest)
	if err != nil {
		return V3ParsedEnvelope{}, fmt.Errorf("wire: v3 scopedPDU/msgData: %w", err)
	}

	offset := cap(datagram) - cap(authParamsT.Value)

	return V3ParsedEnvelope{
		MsgID:            msgID,
		Flags:            gosnmp.SnmpV3MsgFlags(flags),
		EngineID:         string(engineIDT.Value),
		EngineBoots:      uint32(bootsVal),
		EngineTime:       uint32(timeVal),
		UserName:         string(userT.Value),
		AuthParams:       authParamsT.Value,
		AuthParamsOffset: offset,
		PrivParams:       privParamsT.Value,
		ScopedPDU:        scopedT.Value,
		ScopedEncrypted:  scopedT.Tag == gosnmp.OctetString,
	}, nil
}

// decodeV3GlobalsWithFlags parses msgID and the single msgFlags byte out of
// the msgGlobalData SEQUENCE, skipping msgMaxSize and msgSecurityModel
// (both fixed at USM=3 in this implementation).
func decodeV3GlobalsWithFlags(body []byte) (msgID int32, flags byte, err error) {
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
	flagsT, err := decodeTLV(sizeT.Rest)
	if err != nil {
		return 0, 0, fmt.Errorf("wire: v3 msgFlags: %w", err)
	}
	if len(flagsT.Value) != 1 {
		return 0, 0, fmt.Errorf("wire: v3 msgFlags must be 1 byte, got %d", len(flagsT.Value))
	}
	return int32(id), flagsT.Value[0], nil
}

// BuildScopedPDU renders the plaintext scopedPDU SEQUENCE{contextEngineID,
// contextName, pdu}. Callers needing privacy pass the returned bytes to a
// USM Encrypt call and set ScopedEncrypted/ScopedPDU on the envelope
// themselves.
func BuildScopedPDU(contextEngineID, contextName string, pduTag gosnmp.Asn1BER, requestID int32, errorStatus, errorIndex int, varbinds []DecodedVarBind) ([]byte, error) {
	vbBytes, err := encodeVarBindList(varbinds)
	if err != nil {
		return nil, err
	}
	pduBody := concatTLV(
		encodeTLV(gosnmp.Integer, encodeInt(int64(requestID))),
		encodeTLV(gosnmp.Integer, encodeInt(int64(errorStatus))),
		encodeTLV(gosnmp.Integer, encodeInt(int64(errorIndex))),
		vbBytes,
	)
	pdu := encodeTLV(pduTag, pduBody)
	body := concatTLV(
		encodeTLV(gosnmp.OctetString, []byte(contextEngineID)),
		encodeTLV(gosnmp.OctetString, []byte(contextName)),
		pdu,
	)
	return encodeTLV(gosnmp.Sequence, body), nil
}
