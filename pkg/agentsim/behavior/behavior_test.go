package behavior_test

import (
	"math/rand"
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/behavior"
)

func reqWithVarbind(oid string) *models.RequestContext {
	ctx := models.NewRequestContext()
	ctx.Varbinds = []gosnmp.SnmpPDU{{Name: oid}}
	return ctx
}

func TestResourceGate_BlocksOverCapacity(t *testing.T) {
	gate := behavior.NewResourceGate(1, false)

	a := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	gate.BeforeLookup(a)
	if a.Derived.ErrorOverride != nil {
		t.Fatal("first request should acquire the slot cleanly")
	}

	b := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	gate.BeforeLookup(b)
	if b.Derived.ErrorOverride == nil || *b.Derived.ErrorOverride != gosnmp.TooBig {
		t.Fatalf("second concurrent request should get TooBig, got %v", b.Derived.ErrorOverride)
	}

	gate.AfterLookup(a, 0)
	c := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	gate.BeforeLookup(c)
	if c.Derived.ErrorOverride != nil {
		t.Fatal("slot should be free again after release")
	}
}

func TestAgentXDelay_LongestPrefixWins(t *testing.T) {
	delays := map[string]int{
		"1.3.6.1.4.1.9.9.13":         100,
		"1.3.6.1.4.1.9.9.13.1.3":     500,
	}
	a := behavior.NewAgentXDelay(delays, 0, rand.New(rand.NewSource(1)))
	ctx := reqWithVarbind("1.3.6.1.4.1.9.9.13.1.3.1.3.1")
	a.BeforeLookup(ctx)
	if ctx.Derived.DelayBudgetMS != 500 {
		t.Errorf("DelayBudgetMS = %d, want 500 (longest prefix)", ctx.Derived.DelayBudgetMS)
	}
}

func TestAgentXDelay_NoMatchLeavesBudgetUnchanged(t *testing.T) {
	a := behavior.NewAgentXDelay(map[string]int{"9.9.9": 100}, 0, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	a.BeforeLookup(ctx)
	if ctx.Derived.DelayBudgetMS != 0 {
		t.Errorf("DelayBudgetMS = %d, want 0", ctx.Derived.DelayBudgetMS)
	}
}

func TestBoundaryInjector_MissingObject(t *testing.T) {
	b := behavior.NewBoundaryInjector(nil, []string{"1.3.6.1.2.1.99.1.0"})
	ctx := reqWithVarbind("1.3.6.1.2.1.99.1.0")
	b.BeforeLookup(ctx)
	if ctx.Derived.BoundaryOverrides[0] != gosnmp.NoSuchObject {
		t.Errorf("override = %v, want NoSuchObject", ctx.Derived.BoundaryOverrides[0])
	}
}

func TestBoundaryInjector_ViewEnd(t *testing.T) {
	b := behavior.NewBoundaryInjector(map[string]string{"1.3.6.1.2.1.2": "1.3.6.1.2.1.2.2.1.1.10"}, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.2.2.1.1.10")
	b.BeforeLookup(ctx)
	if ctx.Derived.BoundaryOverrides[0] != gosnmp.EndOfMibView {
		t.Errorf("override = %v, want EndOfMibView", ctx.Derived.BoundaryOverrides[0])
	}
}

func TestErrorInjector_PerOIDMatch(t *testing.T) {
	e := behavior.NewErrorInjector(0, nil, map[string]string{"1.3.6.1.2.1.1.1.0": "noSuchName"}, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	e.BeforeLookup(ctx)
	if ctx.Derived.ErrorOverride == nil || *ctx.Derived.ErrorOverride != gosnmp.NoSuchName {
		t.Errorf("ErrorOverride = %v, want NoSuchName", ctx.Derived.ErrorOverride)
	}
}

func TestErrorInjector_DoesNotOverwriteExisting(t *testing.T) {
	e := behavior.NewErrorInjector(0, nil, map[string]string{"1.3.6.1.2.1.1.1.0": "noSuchName"}, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	existing := gosnmp.NoAccess
	ctx.Derived.ErrorOverride = &existing
	e.BeforeLookup(ctx)
	if *ctx.Derived.ErrorOverride != gosnmp.NoAccess {
		t.Errorf("ErrorOverride overwritten: %v", *ctx.Derived.ErrorOverride)
	}
}

func TestGlobalDelay_NeverNegative(t *testing.T) {
	g := behavior.NewGlobalDelay(0, 50, "uniform", nil, rand.New(rand.NewSource(3)))
	for i := 0; i < 50; i++ {
		ctx := models.NewRequestContext()
		g.BeforeLookup(ctx)
		if ctx.Derived.DelayBudgetMS < 0 {
			t.Fatalf("DelayBudgetMS negative: %d", ctx.Derived.DelayBudgetMS)
		}
	}
}

func TestGlobalDelay_PerOIDAddsOnTopOfBaseline(t *testing.T) {
	g := behavior.NewGlobalDelay(10, 0, "uniform", map[string]int{"1.3.6.1.2.1.1.1.0": 200}, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	g.BeforeLookup(ctx)
	if ctx.Derived.DelayBudgetMS != 210 {
		t.Errorf("DelayBudgetMS = %d, want 210 (10 baseline + 200 per-OID)", ctx.Derived.DelayBudgetMS)
	}
}

func TestGlobalDelay_PerOIDNoMatchLeavesBaselineOnly(t *testing.T) {
	g := behavior.NewGlobalDelay(10, 0, "uniform", map[string]int{"9.9.9": 200}, nil)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	g.BeforeLookup(ctx)
	if ctx.Derived.DelayBudgetMS != 10 {
		t.Errorf("DelayBudgetMS = %d, want 10 (no per-OID match)", ctx.Derived.DelayBudgetMS)
	}
}

func TestDrop_MarksDecision(t *testing.T) {
	d := behavior.NewDrop(1.0, "response", nil) // rate 100%
	ctx := models.NewRequestContext()
	d.BeforeLookup(ctx)
	if !ctx.Derived.DropDecision || ctx.Derived.DropSide != "response" {
		t.Errorf("Derived = %+v", ctx.Derived)
	}
}

func TestChain_RunsStagesInOrder(t *testing.T) {
	chain := behavior.New(
		behavior.NewResourceGate(10, false),
		behavior.NewAgentXDelay(nil, 0, nil),
		behavior.NewBoundaryInjector(nil, nil),
		behavior.NewErrorInjector(0, nil, nil, nil),
		behavior.NewGlobalDelay(10, 0, "uniform", nil, nil),
		behavior.NewDrop(0, "", nil),
	)
	ctx := reqWithVarbind("1.3.6.1.2.1.1.1.0")
	chain.RunBefore(ctx)
	if ctx.Derived.DelayBudgetMS != 10 {
		t.Errorf("DelayBudgetMS = %d, want 10 from global delay stage", ctx.Derived.DelayBudgetMS)
	}
	chain.RunAfter(ctx, 0)
}
