package engine_test

import (
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/behavior"
	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"
	"github.com/mocksnmp/agentsim/pkg/agentsim/engine"
	"github.com/mocksnmp/agentsim/pkg/agentsim/producer"
	"github.com/mocksnmp/agentsim/pkg/agentsim/store"
)

func newTestEngine(t *testing.T) (*engine.Engine, *store.Store) {
	t.Helper()
	registry := producer.NewRegistry()
	registry.Register("sysDescr", producer.NewWriteCache(gosnmp.OctetString, "1.3.6.1.2.1.1.1.0", "test agent", nil))

	st := store.New(registry)
	st.Load([]models.Record{
		{OID: models.MustParseOID("1.3.6.1.2.1.1.1.0"), Type: gosnmp.OctetString, ProducerRef: "sysDescr", Writable: true},
		{OID: models.MustParseOID("1.3.6.1.2.1.1.3.0"), Type: gosnmp.TimeTicks, Value: uint64(12345)},
		{OID: models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1"), Type: gosnmp.Counter32, Value: uint64(1000)},
	})

	ctxDef := models.Context{Name: "default", StoreRef: "main"}
	resolver := agentctx.New([]models.Context{ctxDef}, []models.CommunityMapping{{Community: "public", Context: "default"}}, "default")

	chain := behavior.New()
	e := engine.New(map[string]*store.Store{"main": st}, resolver, chain, models.LimitsConfig{PDUMaxBytes: 1472, MaxRepetitionsCap: 100})
	return e, st
}

func getRequest(oids ...string) *models.RequestContext {
	req := models.NewRequestContext()
	req.Version = gosnmp.Version2c
	req.Community = "public"
	req.PDUType = models.PDUGetRequest
	for _, o := range oids {
		req.Varbinds = append(req.Varbinds, gosnmp.SnmpPDU{Name: o})
	}
	return req
}

func TestEngine_Get_ExactMatch(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.1.3.0")
	out := e.Process(req)
	if out.Drop {
		t.Fatal("unexpected drop")
	}
	if len(out.Varbinds) != 1 || out.Varbinds[0].Type != gosnmp.TimeTicks {
		t.Fatalf("unexpected varbinds: %+v", out.Varbinds)
	}
}

func TestEngine_Get_UnknownOIDReturnsNoSuchObject(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.99.0")
	out := e.Process(req)
	if len(out.Varbinds) != 1 || out.Varbinds[0].Type != gosnmp.NoSuchObject {
		t.Fatalf("expected NoSuchObject, got %+v", out.Varbinds)
	}
}

func TestEngine_Get_V1CollapsesToNoSuchName(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.99.0")
	req.Version = gosnmp.Version1
	out := e.Process(req)
	if out.ErrorStatus != gosnmp.NoSuchName || out.ErrorIndex != 1 {
		t.Fatalf("expected noSuchName/1, got status=%v index=%d", out.ErrorStatus, out.ErrorIndex)
	}
}

func TestEngine_GetNext_WalksForward(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.1.1.0")
	req.PDUType = models.PDUGetNextRequest
	out := e.Process(req)
	if len(out.Varbinds) != 1 {
		t.Fatalf("expected one varbind, got %d", len(out.Varbinds))
	}
	want := models.MustParseOID("1.3.6.1.2.1.1.3.0")
	if !out.Varbinds[0].OID.Equal(want) {
		t.Errorf("next oid = %s, want %s", out.Varbinds[0].OID, want)
	}
}

func TestEngine_GetNext_EndOfMibView(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.2.2.1.10.1")
	req.PDUType = models.PDUGetNextRequest
	out := e.Process(req)
	if len(out.Varbinds) != 1 || out.Varbinds[0].Type != gosnmp.EndOfMibView {
		t.Fatalf("expected EndOfMibView, got %+v", out.Varbinds)
	}
}

func TestEngine_GetBulk_CollectsUpToMaxRepetitions(t *testing.T) {
	e, _ := newTestEngine(t)
	req := getRequest("1.3.6.1.2.1.1.1.0")
	req.PDUType = models.PDUGetBulkRequest
	req.NonRepeaters = 0
	req.MaxRepetitions = 5
	out := e.Process(req)
	if len(out.Varbinds) == 0 {
		t.Fatal("expected at least one repetition")
	}
	last := out.Varbinds[len(out.Varbinds)-1]
	if last.Type != gosnmp.EndOfMibView && len(out.Varbinds) > 2 {
		t.Errorf("expected walk to terminate at EndOfMibView, got %+v", last)
	}
}

func TestEngine_Set_RoundTrips(t *testing.T) {
	e, _ := newTestEngine(t)
	req := models.NewRequestContext()
	req.Version = gosnmp.Version2c
	req.Community = "public"
	req.PDUType = models.PDUSetRequest
	req.Varbinds = []gosnmp.SnmpPDU{{Name: "1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: "updated description"}}

	out := e.Process(req)
	if out.ErrorStatus != gosnmp.NoError {
		t.Fatalf("unexpected error status %v", out.ErrorStatus)
	}
	if len(out.Varbinds) != 1 || out.Varbinds[0].Value != "updated description" {
		t.Fatalf("unexpected post-set varbind: %+v", out.Varbinds)
	}
}

func TestEngine_Set_NotWritableRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	req := models.NewRequestContext()
	req.Version = gosnmp.Version2c
	req.Community = "public"
	req.PDUType = models.PDUSetRequest
	req.Varbinds = []gosnmp.SnmpPDU{{Name: "1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint64(1)}}

	out := e.Process(req)
	if out.ErrorStatus != gosnmp.NotWritable {
		t.Fatalf("expected notWritable, got %v", out.ErrorStatus)
	}
}

func TestEngine_Set_SecondVarbindNotWritable_NoPartialCommit(t *testing.T) {
	e, _ := newTestEngine(t)
	req := models.NewRequestContext()
	req.Version = gosnmp.Version2c
	req.Community = "public"
	req.PDUType = models.PDUSetRequest
	req.Varbinds = []gosnmp.SnmpPDU{
		{Name: "1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: "new description"},
		{Name: "1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint64(1)},
	}

	out := e.Process(req)
	if out.ErrorStatus != gosnmp.NotWritable || out.ErrorIndex != 2 {
		t.Fatalf("expected notWritable/2, got status=%v index=%d", out.ErrorStatus, out.ErrorIndex)
	}

	getOut := e.Process(getRequest("1.3.6.1.2.1.1.1.0"))
	if getOut.Varbinds[0].Value != "test agent" {
		t.Fatalf("first varbind committed despite second varbind's rejection: %+v", getOut.Varbinds[0])
	}
}

func TestEngine_UnresolvableContextDropsRequest(t *testing.T) {
	st := store.New(nil)
	st.Load([]models.Record{{OID: models.MustParseOID("1.3.6.1.2.1.1.3.0"), Type: gosnmp.TimeTicks, Value: uint64(1)}})
	resolver := agentctx.New(nil, nil, "nonexistent")
	chain := behavior.New()
	e := engine.New(map[string]*store.Store{"main": st}, resolver, chain, models.LimitsConfig{})

	req := getRequest("1.3.6.1.2.1.1.3.0")
	out := e.Process(req)
	if !out.Drop {
		t.Fatal("expected drop for request resolving to a nonexistent context")
	}
}
