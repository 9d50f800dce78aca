package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/app"
	"github.com/mocksnmp/agentsim/pkg/agentsim/config"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

const endpointsYAML = `
endpoints:
  - udp: "127.0.0.1:0"
`

const contextsYAML = `
contexts:
  - name: ""
    store_ref: main
    communities: ["public"]
    record_file: main.snmprec
`

const limitsYAML = `
pdu_max_bytes: 1472
max_repetitions_cap: 100
per_request_budget_ms: 1000
`

const recordFile = `
1.3.6.1.2.1.1.1.0|4|test agent
1.3.6.1.2.1.1.3.0|67:counter,bits=32,rate=1|0
1.3.6.1.2.1.2.2.1.10.1|65:counter,bits=32,rate=1000|0
1.3.6.1.2.1.25.1.6.0|2:dynamic,curve=sine,amplitude=10,offset=50|0
1.3.6.1.2.1.99.1.0|4:writecache|unset
1.3.6.1.2.1.99.2.0|4:delay,base_ms=5|static value
`

func newTestApp(t *testing.T) (*app.App, string) {
	t.Helper()
	dir := writeTree(t, map[string]string{
		"endpoints.yaml": endpointsYAML,
		"contexts.yaml":  contextsYAML,
		"limits.yaml":    limitsYAML,
		"main.snmprec":   recordFile,
	})
	a := app.New(app.Config{
		ConfigPaths: config.Paths{Root: dir},
		PersistPath: filepath.Join(dir, "writecache.log"),
		EngineID:    "test-engine",
	}, nil)
	return a, dir
}

func TestApp_StartBuildsQueryableStore(t *testing.T) {
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	entries, _, hasMore, err := a.Surface().ListOIDs("main", nil, 20, nil)
	if err != nil {
		t.Fatalf("ListOIDs: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("len(entries) = %d, want 6", len(entries))
	}
	if hasMore {
		t.Fatal("hasMore should be false once every record is returned")
	}

	out, err := a.Surface().QueryOIDs("main", []models.OID{models.MustParseOID("1.3.6.1.2.1.1.3.0")})
	if err != nil {
		t.Fatalf("QueryOIDs: %v", err)
	}
	if _, ok := out[0].Value.(uint32); !ok {
		t.Errorf("counter value type = %T, want uint32", out[0].Value)
	}
}

func TestApp_WriteCacheSurvivesReload(t *testing.T) {
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	surface := a.Surface()
	cfg := surface.SnapshotConfig()
	if err := surface.ApplyConfigDelta(cfg); err != nil {
		t.Fatalf("ApplyConfigDelta (no-op reload): %v", err)
	}

	entries, _, _, err := surface.ListOIDs("main", models.MustParseOID("1.3.6.1.2.1.99"), 10, nil)
	if err != nil {
		t.Fatalf("ListOIDs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (writecache + delay records still present)", len(entries))
	}
}

func TestApp_CounterGroupSharesPhase(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"endpoints.yaml": endpointsYAML,
		"contexts.yaml":  contextsYAML,
		"limits.yaml":    limitsYAML,
		"counters.yaml": `
counters:
  - oids: ["1.3.6.1.2.1.2.2.1.10.1"]
    bits: 32
    rate: 500
    acceleration: 1
    seed: 7
`,
		"main.snmprec": recordFile,
	})
	a := app.New(app.Config{
		ConfigPaths: config.Paths{Root: dir},
		PersistPath: filepath.Join(dir, "writecache.log"),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	out, err := a.Surface().QueryOIDs("main", []models.OID{models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1")})
	if err != nil {
		t.Fatalf("QueryOIDs: %v", err)
	}
	if _, ok := out[0].Value.(uint32); !ok {
		t.Errorf("counter value type = %T, want uint32", out[0].Value)
	}
}

func TestApp_UnknownVariationTagFailsStart(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"endpoints.yaml": endpointsYAML,
		"contexts.yaml":  contextsYAML,
		"limits.yaml":    limitsYAML,
		"main.snmprec":   "1.3.6.1.2.1.1.1.0|4:bogus|x\n",
	})
	a := app.New(app.Config{
		ConfigPaths: config.Paths{Root: dir},
		PersistPath: filepath.Join(dir, "writecache.log"),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err == nil {
		t.Fatal("expected Start to fail on an unrecognized record-file variation tag")
	}
}

func TestApp_StopIsIdempotentWithoutStart(t *testing.T) {
	a := app.New(app.Config{ConfigPaths: config.Paths{Root: t.TempDir()}}, nil)
	a.Stop()
}

func TestApp_RestartSimulationQuiesces(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"endpoints.yaml": endpointsYAML,
		"contexts.yaml":  contextsYAML,
		"limits.yaml":    limitsYAML,
		"restart.yaml": `
enabled: true
interval_s: 0
downtime_s: 0
jitter_s: 0
`,
		"main.snmprec": recordFile,
	})
	a := app.New(app.Config{
		ConfigPaths:  config.Paths{Root: dir},
		PersistPath:  filepath.Join(dir, "writecache.log"),
		TickInterval: 10 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := a.Surface().Subscribe("state")
	select {
	case ev := <-events:
		if ev.Kind != "restart" && ev.Kind != "scenario_start" && ev.Kind != "scenario_stop" && ev.Kind != "transition" {
			t.Errorf("unexpected state event kind %q", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a restart-simulation cycle")
	}
	a.Stop()
}
