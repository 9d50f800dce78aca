// Package wire implements a from-scratch BER/DER encoder and decoder for
// the SNMP PDU and message shapes (tag/length/value primitives for
// INTEGER, OCTET STRING, OBJECT IDENTIFIER, NULL, SEQUENCE, the application
// tags IpAddress/Counter32/Gauge32/TimeTicks/Opaque/Counter64, and the
// context tags for the exception values and PDU types). It produces and
// consumes gosnmp.SnmpPDU values and gosnmp.Asn1BER tags directly — gosnmp
// exposes no server-side marshal API, but its Asn1BER constants already are
// the real BER tag bytes, so this codec uses them as-is instead of
// maintaining a parallel tag table.
package wire

import (
	"fmt"
	"math/big"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// tlv is a single decoded tag-length-value unit plus whatever bytes follow
// it in the buffer it was decoded from.
type tlv struct {
	Tag   gosnmp.Asn1BER
	Value []byte
	Rest  []byte
}

// encodeLength renders n in BER definite-length form: short form for n<128,
// long form (0x80|numBytes followed by big-endian bytes) otherwise.
func encodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var buf []byte
	for v := n; v > 0; v >>= 8 {
		buf = append([]byte{byte(v)}, buf...)
	}
	return append([]byte{0x80 | byte(len(buf))}, buf...)
}

// encodeTLV renders a complete tag-length-value unit.
func encodeTLV(tag gosnmp.Asn1BER, value []byte) []byte {
	out := make([]byte, 0, len(value)+6)
	out = append(out, byte(tag))
	out = append(out, encodeLength(len(value))...)
	out = append(out, value...)
	return out
}

// decodeTLV reads one tag-length-value unit from the front of buf.
func decodeTLV(buf []byte) (tlv, error) {
	if len(buf) < 2 {
		return tlv{}, fmt.Errorf("wire: truncated TLV header (%d bytes)", len(buf))
	}
	tag := gosnmp.Asn1BER(buf[0])
	lengthByte := buf[1]
	rest := buf[2:]

	var length int
	switch {
	case lengthByte < 0x80:
		length = int(lengthByte)
	case lengthByte == 0x80:
		return tlv{}, fmt.Errorf("wire: indefinite-length BER is not supported")
	default:
		n := int(lengthByte &^ 0x80)
		if n > len(rest) || n > 4 {
			return tlv{}, fmt.Errorf("wire: invalid long-form length (%d bytes)", n)
		}
		for i := 0; i < n; i++ {
			length = length<<8 | int(rest[i])
		}
		rest = rest[n:]
	}
	if length > len(rest) {
		return tlv{}, fmt.Errorf("wire: TLV value length %d exceeds remaining buffer %d", length, len(rest))
	}
	return tlv{Tag: tag, Value: rest[:length], Rest: rest[length:]}, nil
}

// encodeInt renders a signed integer in minimal two's-complement BER form.
func encodeInt(n int64) []byte {
	if n < 0 {
		return encodeNegativeInt(n)
	}
	b := big.NewInt(n).Bytes()
	if len(b) == 0 {
		return []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	return b
}

// encodeNegativeInt renders a negative integer in minimal two's-complement
// form by computing the smallest byte width that represents n correctly.
func encodeNegativeInt(n int64) []byte {
	for width := 1; width <= 8; width++ {
		shift := uint(width-1) * 8
		lo := -(int64(1) << (shift + 7))
		hi := int64(1)<<(shift+7) - 1
		if n >= lo && n <= hi {
			buf := make([]byte, width)
			v := uint64(n)
			for i := width - 1; i >= 0; i-- {
				buf[i] = byte(v)
				v >>= 8
			}
			return buf
		}
	}
	buf := make([]byte, 8)
	v := uint64(n)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// decodeInt parses a BER two's-complement signed integer.
func decodeInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("wire: empty integer encoding")
	}
	var n int64
	if b[0]&0x80 != 0 {
		n = -1
	}
	for _, by := range b {
		n = n<<8 | int64(by)
	}
	return n, nil
}

// encodeUint renders an unsigned integer (Counter32/Gauge32/TimeTicks use
// 32-bit width, Counter64 uses 64-bit) in BER form, prepending a zero byte
// when the high bit would otherwise be mistaken for a sign bit.
func encodeUint(n uint64) []byte {
	var raw []byte
	for v := n; v > 0; v >>= 8 {
		raw = append([]byte{byte(v)}, raw...)
	}
	if len(raw) == 0 {
		raw = []byte{0x00}
	}
	if raw[0]&0x80 != 0 {
		raw = append([]byte{0x00}, raw...)
	}
	return raw
}

// decodeUint parses a BER unsigned integer encoding.
func decodeUint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("wire: empty unsigned integer encoding")
	}
	var n uint64
	for _, by := range b {
		n = n<<8 | uint64(by)
	}
	return n, nil
}

// encodeOID renders oid in BER OBJECT IDENTIFIER form: the first two arcs
// are combined as 40*arc0+arc1, and every arc (including the combined
// first one) is then base-128 encoded with a continuation bit on all but
// the last byte of each arc.
func encodeOID(oid models.OID) []byte {
	if len(oid) == 0 {
		return nil
	}
	arcs := make([]uint32, 0, len(oid))
	switch {
	case len(oid) == 1:
		arcs = append(arcs, combineFirstArcs(oid[0], 0))
	default:
		arcs = append(arcs, combineFirstArcs(oid[0], oid[1]))
		arcs = append(arcs, oid[2:]...)
	}
	var out []byte
	for _, arc := range arcs {
		out = append(out, encodeBase128(arc)...)
	}
	return out
}

// combineFirstArcs applies the X.690 rule for folding an OID's first two
// arcs into one sub-identifier: arc0*40+arc1 when arc0 is 0 or 1 (so arc1
// must stay below 40), or 80+arc1 when arc0 is 2 (arc1 unbounded).
func combineFirstArcs(arc0, arc1 uint32) uint32 {
	if arc0 <= 1 {
		return arc0*40 + arc1
	}
	return 80 + arc1
}

func encodeBase128(v uint32) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var groups []byte
	for v > 0 {
		groups = append([]byte{byte(v & 0x7f)}, groups...)
		v >>= 7
	}
	for i := 0; i < len(groups)-1; i++ {
		groups[i] |= 0x80
	}
	return groups
}

// decodeOID parses a BER OBJECT IDENTIFIER body back into an OID.
func decodeOID(b []byte) (models.OID, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("wire: empty OID encoding")
	}
	var arcs []uint32
	var cur uint32
	for _, by := range b {
		cur = cur<<7 | uint32(by&0x7f)
		if by&0x80 == 0 {
			arcs = append(arcs, cur)
			cur = 0
		}
	}
	if len(arcs) == 0 {
		return nil, fmt.Errorf("wire: malformed OID encoding")
	}
	first := arcs[0]
	oid := make(models.OID, 0, len(arcs)+1)
	if first < 80 {
		oid = append(oid, first/40, first%40)
	} else {
		oid = append(oid, 2, first-80)
	}
	oid = append(oid, arcs[1:]...)
	return oid, nil
}
