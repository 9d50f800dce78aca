package context_test

import (
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"
)

func reqV2c(community string) *models.RequestContext {
	r := models.NewRequestContext()
	r.Version = gosnmp.Version2c
	r.Community = community
	return r
}

func reqV3(user string) *models.RequestContext {
	r := models.NewRequestContext()
	r.Version = gosnmp.Version3
	r.V3User = user
	r.ContextName = "devices"
	return r
}

func TestResolve_CommunityMapsToContext(t *testing.T) {
	r := agentctx.New(
		[]models.Context{{Name: "devices", StoreRef: "devices"}},
		[]models.CommunityMapping{{Community: "public", Context: "devices"}},
		"default",
	)
	req := reqV2c("public")
	def, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if def == nil || def.Name != "devices" {
		t.Errorf("def = %+v", def)
	}
	if req.ContextName != "devices" {
		t.Errorf("ContextName = %q", req.ContextName)
	}
}

func TestResolve_UnmappedCommunityFallsBackToDefault(t *testing.T) {
	r := agentctx.New(
		[]models.Context{{Name: "default", StoreRef: "default"}},
		nil,
		"default",
	)
	req := reqV2c("unknown-community")
	def, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if def.Name != "default" {
		t.Errorf("def.Name = %q, want default", def.Name)
	}
}

func TestResolve_V3UnknownUserAuthorizationError(t *testing.T) {
	r := agentctx.New(
		[]models.Context{{Name: "devices", StoreRef: "devices", AllowedUsers: []string{"admin"}}},
		nil, "devices",
	)
	req := reqV3("intruder")
	_, err := r.Resolve(req)
	if err != agentctx.ErrAuthorizationFailed {
		t.Errorf("err = %v, want ErrAuthorizationFailed", err)
	}
}

func TestResolve_V1V2cUnauthorizedIsSilentDrop(t *testing.T) {
	r := agentctx.New(
		[]models.Context{{Name: "restricted", StoreRef: "r", AllowedUsers: []string{"special"}}},
		[]models.CommunityMapping{{Community: "public", Context: "restricted"}},
		"restricted",
	)
	req := reqV2c("public")
	_, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve returned error instead of silent drop: %v", err)
	}
	if !req.Derived.DropDecision {
		t.Error("expected DropDecision to be set")
	}
}

func TestIsDenied_MatchesPrefix(t *testing.T) {
	def := &models.Context{DeniedOIDPatterns: []models.OID{models.MustParseOID("1.3.6.1.2.1.2")}}
	if !agentctx.IsDenied(def, models.MustParseOID("1.3.6.1.2.1.2.2.1.1.1")) {
		t.Error("expected oid under denied prefix to be denied")
	}
	if agentctx.IsDenied(def, models.MustParseOID("1.3.6.1.2.1.1.1.0")) {
		t.Error("expected oid outside denied prefix to be allowed")
	}
}

func TestOverlay_SetGetClear(t *testing.T) {
	r := agentctx.New([]models.Context{{Name: "devices", StoreRef: "devices"}}, nil, "devices")
	oid := models.MustParseOID("1.3.6.1.2.1.1.5.0")

	if _, ok := r.Overlay("devices", oid); ok {
		t.Fatal("expected no overlay initially")
	}

	r.SetOverlay("devices", oid, models.Record{OID: oid, Type: gosnmp.OctetString, Value: "rebooting"})
	rec, ok := r.Overlay("devices", oid)
	if !ok || rec.Value != "rebooting" {
		t.Errorf("overlay = %+v, ok=%v", rec, ok)
	}

	r.ClearOverlay("devices", oid)
	if _, ok := r.Overlay("devices", oid); ok {
		t.Error("expected overlay cleared")
	}
}
