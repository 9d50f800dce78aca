package wire

import (
	"fmt"
	"net"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// EncodeValue renders a single ASN.1 value (as tagged by asnType) to its
// BER value bytes, dispatching on the Go type the Record Store and Value
// Producers are documented to use for each tag.
func EncodeValue(asnType gosnmp.Asn1BER, value any) ([]byte, error) {
	switch asnType {
	case gosnmp.Integer:
		n, err := asInt64(value)
		if err != nil {
			return nil, err
		}
		return encodeInt(n), nil

	case gosnmp.OctetString, gosnmp.Opaque:
		switch v := value.(type) {
		case string:
			return []byte(v), nil
		case []byte:
			return v, nil
		default:
			return nil, fmt.Errorf("wire: OCTET STRING value must be string or []byte, got %T", value)
		}

	case gosnmp.ObjectIdentifier:
		oid, ok := value.(models.OID)
		if !ok {
			return nil, fmt.Errorf("wire: OBJECT IDENTIFIER value must be models.OID, got %T", value)
		}
		return encodeOID(oid), nil

	case gosnmp.IPAddress:
		ip, err := asIPv4(value)
		if err != nil {
			return nil, err
		}
		return ip, nil

	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		n, err := asUint64(value)
		if err != nil {
			return nil, err
		}
		return encodeUint(n), nil

	case gosnmp.Counter64:
		n, err := asUint64(value)
		if err != nil {
			return nil, err
		}
		return encodeUint(n), nil

	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil, nil

	default:
		return nil, fmt.Errorf("wire: unsupported ASN.1 tag 0x%x", byte(asnType))
	}
}

// DecodeValue parses value bytes tagged asnType into the Go type used
// throughout the Record Store and Value Producers for that tag.
func DecodeValue(asnType gosnmp.Asn1BER, raw []byte) (any, error) {
	switch asnType {
	case gosnmp.Integer:
		return decodeInt(raw)
	case gosnmp.OctetString, gosnmp.Opaque:
		return string(raw), nil
	case gosnmp.ObjectIdentifier:
		return decodeOID(raw)
	case gosnmp.IPAddress:
		if len(raw) != 4 {
			return nil, fmt.Errorf("wire: IpAddress must be 4 bytes, got %d", len(raw))
		}
		return net.IP(raw).String(), nil
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		n, err := decodeUint(raw)
		if err != nil {
			return nil, err
		}
		return uint32(n), nil
	case gosnmp.Counter64:
		return decodeUint(raw)
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil, nil
	default:
		return nil, fmt.Errorf("wire: unsupported ASN.1 tag 0x%x", byte(asnType))
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("wire: INTEGER value must be an int kind, got %T", v)
	}
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case gosnmp.Counter32:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("wire: unsigned value must be a uint kind, got %T", v)
	}
}

func asIPv4(v any) ([]byte, error) {
	switch ip := v.(type) {
	case string:
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, fmt.Errorf("wire: invalid IPAddress literal %q", ip)
		}
		v4 := parsed.To4()
		if v4 == nil {
			return nil, fmt.Errorf("wire: IPAddress %q is not IPv4", ip)
		}
		return v4, nil
	case net.IP:
		v4 := ip.To4()
		if v4 == nil {
			return nil, fmt.Errorf("wire: IPAddress is not IPv4")
		}
		return v4, nil
	default:
		return nil, fmt.Errorf("wire: IPAddress value must be string or net.IP, got %T", v)
	}
}

// EncodeVarBind renders one SNMP VarBind: SEQUENCE { name OID, value ANY }.
func EncodeVarBind(oid models.OID, asnType gosnmp.Asn1BER, value any) ([]byte, error) {
	nameTLV := encodeTLV(gosnmp.ObjectIdentifier, encodeOID(oid))
	valBytes, err := EncodeValue(asnType, value)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding value for %s: %w", oid, err)
	}
	valueTLV := encodeTLV(asnType, valBytes)
	return encodeTLV(gosnmp.Sequence, append(nameTLV, valueTLV...)), nil
}

// DecodedVarBind is one parsed VarBind from an incoming PDU.
type DecodedVarBind struct {
	OID   models.OID
	Type  gosnmp.Asn1BER
	Value any
}

// DecodeVarBind parses one VarBind SEQUENCE's body.
func DecodeVarBind(body []byte) (DecodedVarBind, error) {
	nameT, err := decodeTLV(body)
	if err != nil {
		return DecodedVarBind{}, fmt.Errorf("wire: varbind name: %w", err)
	}
	if nameT.Tag != gosnmp.ObjectIdentifier {
		return DecodedVarBind{}, fmt.Errorf("wire: varbind name tag 0x%x, want OBJECT IDENTIFIER", byte(nameT.Tag))
	}
	oid, err := decodeOID(nameT.Value)
	if err != nil {
		return DecodedVarBind{}, fmt.Errorf("wire: varbind oid: %w", err)
	}

	valT, err := decodeTLV(nameT.Rest)
	if err != nil {
		return DecodedVarBind{}, fmt.Errorf("wire: varbind value: %w", err)
	}
	val, err := DecodeValue(valT.Tag, valT.Value)
	if err != nil {
		return DecodedVarBind{}, fmt.Errorf("wire: varbind %s value: %w", oid, err)
	}
	return DecodedVarBind{OID: oid, Type: valT.Tag, Value: val}, nil
}
