package recfile_test

import (
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/recfile"
)

func TestParse_StaticTypes(t *testing.T) {
	data := strings.Join([]string{
		"1.3.6.1.2.1.1.1.0|4|Mock SNMP Agent",
		"1.3.6.1.2.1.1.3.0|67|12345",
		"1.3.6.1.2.1.1.2.0|6|1.3.6.1.4.1.8072.3.2.10",
		"1.3.6.1.2.1.4.20.1.1.1|64|192.0.2.1",
	}, "\n")

	entries, err := recfile.Parse(strings.NewReader(data), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	if entries[0].Record.Type != gosnmp.OctetString || entries[0].Record.Value != "Mock SNMP Agent" {
		t.Errorf("entry 0 = %+v", entries[0].Record)
	}
	if entries[1].Record.Type != gosnmp.TimeTicks || entries[1].Record.Value != uint32(12345) {
		t.Errorf("entry 1 = %+v", entries[1].Record)
	}
	wantOID := models.MustParseOID("1.3.6.1.4.1.8072.3.2.10")
	gotOID, ok := entries[2].Record.Value.(models.OID)
	if !ok || !gotOID.Equal(wantOID) {
		t.Errorf("entry 2 value = %+v, want %v", entries[2].Record.Value, wantOID)
	}
}

func TestParse_VariationTag(t *testing.T) {
	entries, err := recfile.Parse(strings.NewReader(
		"1.3.6.1.2.1.2.2.1.10.1|65:counter,rate=1,acceleration=1000,seed=4294967000|0",
	), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := entries[0]
	if e.VariationTag != "counter" {
		t.Errorf("VariationTag = %q", e.VariationTag)
	}
	if e.Params["rate"] != "1" || e.Params["acceleration"] != "1000" || e.Params["seed"] != "4294967000" {
		t.Errorf("Params = %+v", e.Params)
	}
	if e.Record.ProducerRef == "" {
		t.Error("ProducerRef should be set when a variation tag is present")
	}
}

func TestParse_WriteCacheIsWritable(t *testing.T) {
	entries, err := recfile.Parse(strings.NewReader(
		"1.3.6.1.2.1.1.6.0|4:writecache|unset location",
	), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !entries[0].Record.Writable {
		t.Error("writecache record should be Writable")
	}
}

func TestParse_UnknownTypeCode(t *testing.T) {
	_, err := recfile.Parse(strings.NewReader("1.3.6.1.2.1.1.1.0|99|x"), "test")
	if err == nil {
		t.Fatal("expected error for unknown type code")
	}
}

func TestParse_UnknownVariationTag(t *testing.T) {
	_, err := recfile.Parse(strings.NewReader("1.3.6.1.2.1.1.1.0|4:bogus|x"), "test")
	if err == nil {
		t.Fatal("expected error for unknown variation tag")
	}
}

func TestParse_MalformedLine(t *testing.T) {
	_, err := recfile.Parse(strings.NewReader("1.3.6.1.2.1.1.1.0|4"), "test")
	if err == nil {
		t.Fatal("expected error for missing value field")
	}
}

func TestParse_SkipsBlankAndCommentLines(t *testing.T) {
	data := "\n# comment\n1.3.6.1.2.1.1.1.0|4|hello\n\n"
	entries, err := recfile.Parse(strings.NewReader(data), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}
