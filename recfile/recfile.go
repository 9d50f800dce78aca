// Package recfile parses the newline-delimited record file format consumed
// by the Record Store at load time:
//
//	<oid>|<type-code>[:<variation-tag>[,key=val]*]|<value>
//
// Type codes: 2=Integer, 4=OCTET STRING, 6=OID, 64=IPAddress, 65=Counter32,
// 66=Gauge32, 67=TimeTicks, 70=Counter64. A variation tag names the value
// producer that should be attached to the record instead of (or alongside)
// its static value; recognized tags are delay, error, writecache, counter,
// dynamic. Unknown tags are a load error.
package recfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// Entry is one parsed record-file line: the static Record plus, when the
// line names a variation tag, the producer it should be bound to and any
// "key=val" parameters carried alongside the tag.
type Entry struct {
	Record       models.Record
	VariationTag string
	Params       map[string]string
}

var knownTags = map[string]bool{
	"delay":      true,
	"error":      true,
	"writecache": true,
	"counter":    true,
	"dynamic":    true,
}

// typeCodes maps the record-file numeric type code to the gosnmp ASN.1 tag.
var typeCodes = map[string]gosnmp.Asn1BER{
	"2":  gosnmp.Integer,
	"4":  gosnmp.OctetString,
	"6":  gosnmp.ObjectIdentifier,
	"64": gosnmp.IPAddress,
	"65": gosnmp.Counter32,
	"66": gosnmp.Gauge32,
	"67": gosnmp.TimeTicks,
	"70": gosnmp.Counter64,
}

// Load reads and parses the record file at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recfile: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads newline-delimited records from r. name is used only in error
// messages (typically the source file path).
func Parse(r io.Reader, name string) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("recfile: %s:%d: %w", name, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recfile: %s: %w", name, err)
	}
	return entries, nil
}

// parseLine parses one "<oid>|<type-code>[:<tag>[,k=v]*]|<value>" line.
func parseLine(line string) (Entry, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("expected 3 pipe-delimited fields, got %d", len(parts))
	}
	oidStr, typeField, valueStr := parts[0], parts[1], parts[2]

	oid, err := models.ParseOID(oidStr)
	if err != nil {
		return Entry{}, err
	}

	typeCode, tag, params, err := parseTypeField(typeField)
	if err != nil {
		return Entry{}, err
	}

	asnType, ok := typeCodes[typeCode]
	if !ok {
		return Entry{}, fmt.Errorf("unknown type code %q", typeCode)
	}

	value, err := parseValue(asnType, valueStr)
	if err != nil {
		return Entry{}, fmt.Errorf("oid %s: %w", oidStr, err)
	}

	entry := Entry{
		Record: models.Record{
			OID:      oid,
			Type:     asnType,
			Value:    value,
			Writable: tag == "writecache",
		},
		VariationTag: tag,
		Params:       params,
	}
	if tag != "" {
		entry.Record.ProducerRef = oidStr + ":" + tag
	}
	return entry, nil
}

// parseTypeField splits "65:counter,rate=1,acceleration=1000" into its type
// code, variation tag, and parameter map.
func parseTypeField(field string) (code, tag string, params map[string]string, err error) {
	segs := strings.Split(field, ":")
	code = segs[0]
	if len(segs) == 1 {
		return code, "", nil, nil
	}
	if len(segs) > 2 {
		return "", "", nil, fmt.Errorf("malformed type field %q", field)
	}

	rest := strings.Split(segs[1], ",")
	tag = rest[0]
	if !knownTags[tag] {
		return "", "", nil, fmt.Errorf("unknown variation tag %q", tag)
	}

	params = make(map[string]string, len(rest)-1)
	for _, kv := range rest[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return "", "", nil, fmt.Errorf("malformed variation parameter %q", kv)
		}
		params[k] = v
	}
	return code, tag, params, nil
}

// ParseTypeValue converts a "<type-code>:<value>" pair (the syntax used by
// context OID overrides and state-machine transition overlays) into the
// ASN.1 type and Go value a Record expects, reusing the same type-code table
// and value parsing the record-file format itself uses.
func ParseTypeValue(field string) (gosnmp.Asn1BER, any, error) {
	code, raw, ok := strings.Cut(field, ":")
	if !ok {
		return 0, nil, fmt.Errorf("malformed type-value pair %q", field)
	}
	asnType, ok := typeCodes[code]
	if !ok {
		return 0, nil, fmt.Errorf("unknown type code %q", code)
	}
	value, err := parseValue(asnType, raw)
	if err != nil {
		return 0, nil, err
	}
	return asnType, value, nil
}

// parseValue converts the textual value column into the Go type the rest of
// the system expects for asnType.
func parseValue(asnType gosnmp.Asn1BER, raw string) (any, error) {
	switch asnType {
	case gosnmp.Integer:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer value %q: %w", raw, err)
		}
		return int(n), nil
	case gosnmp.OctetString, gosnmp.IPAddress:
		return raw, nil
	case gosnmp.ObjectIdentifier:
		oid, err := models.ParseOID(raw)
		if err != nil {
			return nil, err
		}
		return oid, nil
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("uint32 value %q: %w", raw, err)
		}
		return uint32(n), nil
	case gosnmp.Counter64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("uint64 value %q: %w", raw, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported asn1 type %v", asnType)
	}
}
