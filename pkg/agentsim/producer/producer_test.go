package producer_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/producer"
)

func reqAt(t time.Time) *models.RequestContext {
	ctx := models.NewRequestContext()
	ctx.RecvTime = t
	return ctx
}

// ── Counter ──────────────────────────────────────────────────────────────────

func TestCounter_MonotonicBetweenWraps(t *testing.T) {
	t0 := time.Unix(0, 0)
	c := producer.NewCounter(32, 1, 1000, 4_294_967_000, t0)

	_, v1raw, _ := c.Read(reqAt(t0), models.Record{})
	v1 := v1raw.(uint32)
	_, v2raw, _ := c.Read(reqAt(t0.Add(10*time.Millisecond)), models.Record{})
	v2 := v2raw.(uint32)

	if v2 > v1 {
		return // strictly increasing, as expected pre-wrap
	}
	// A wrap occurred: v1 must have been within rate*accel*dt of the ceiling.
	const maxUint32 = uint32(4294967295)
	if maxUint32-v1 > 20_000 {
		t.Errorf("v1=%d not near wrap boundary and v2=%d <= v1", v1, v2)
	}
}

func TestCounter_64Bit(t *testing.T) {
	t0 := time.Unix(0, 0)
	c := producer.NewCounter(64, 100, 1, 0, t0)
	_, vraw, _ := c.Read(reqAt(t0.Add(time.Second)), models.Record{})
	v, ok := vraw.(uint64)
	if !ok {
		t.Fatalf("expected uint64, got %T", vraw)
	}
	if v != 100 {
		t.Errorf("v = %d, want 100", v)
	}
}

// ── Delay ────────────────────────────────────────────────────────────────────

func TestDelay_AddsToDelayBudget(t *testing.T) {
	d := producer.NewDelay(producer.Static{}, 50, 0, rand.New(rand.NewSource(1)))
	ctx := reqAt(time.Now())
	_, _, err := d.Read(ctx, models.Record{Type: gosnmp.OctetString, Value: "x"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ctx.Derived.DelayBudgetMS != 50 {
		t.Errorf("DelayBudgetMS = %d, want 50", ctx.Derived.DelayBudgetMS)
	}
}

func TestDelay_NeverNegative(t *testing.T) {
	d := producer.NewDelay(producer.Static{}, 5, 100, rand.New(rand.NewSource(2)))
	for i := 0; i < 50; i++ {
		ctx := reqAt(time.Now())
		d.Read(ctx, models.Record{})
		if ctx.Derived.DelayBudgetMS < 0 {
			t.Fatalf("DelayBudgetMS went negative: %d", ctx.Derived.DelayBudgetMS)
		}
	}
}

// ── Error ────────────────────────────────────────────────────────────────────

func TestErrorProducer_SetsOverride(t *testing.T) {
	p := producer.NewErrorProducer(gosnmp.TooBig)
	ctx := reqAt(time.Now())
	p.Read(ctx, models.Record{})
	if ctx.Derived.ErrorOverride == nil || *ctx.Derived.ErrorOverride != gosnmp.TooBig {
		t.Errorf("ErrorOverride = %v, want TooBig", ctx.Derived.ErrorOverride)
	}
}

func TestErrorProducer_DoesNotOverwriteExisting(t *testing.T) {
	p := producer.NewErrorProducer(gosnmp.TooBig)
	ctx := reqAt(time.Now())
	first := gosnmp.NoAccess
	ctx.Derived.ErrorOverride = &first
	p.Read(ctx, models.Record{})
	if *ctx.Derived.ErrorOverride != gosnmp.NoAccess {
		t.Errorf("ErrorOverride changed to %v, want untouched NoAccess", *ctx.Derived.ErrorOverride)
	}
}

// ── WriteCache ───────────────────────────────────────────────────────────────

type fakeSink struct {
	calls []string
	err   error
}

func (f *fakeSink) Append(key, value string) error {
	f.calls = append(f.calls, key+"="+value)
	return f.err
}

func TestWriteCache_LastWriteWins(t *testing.T) {
	sink := &fakeSink{}
	wc := producer.NewWriteCache(gosnmp.OctetString, "1.3.6.1.2.1.1.6.0", "initial", sink)

	if err := wc.Write(reqAt(time.Now()), models.Record{}, "updated"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, v, _ := wc.Read(reqAt(time.Now()), models.Record{})
	if v != "updated" {
		t.Errorf("v = %v, want updated", v)
	}
	if len(sink.calls) != 1 || sink.calls[0] != "1.3.6.1.2.1.1.6.0=updated" {
		t.Errorf("sink calls = %+v", sink.calls)
	}
}

func TestWriteCache_WrongTypeRejected(t *testing.T) {
	wc := producer.NewWriteCache(gosnmp.Counter32, "oid", uint32(1), nil)
	err := wc.Write(reqAt(time.Now()), models.Record{}, "not a counter")
	if err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

func TestWriteCache_SinkFailureSurfacesResourceUnavailable(t *testing.T) {
	sink := &fakeSink{err: errTestSink}
	wc := producer.NewWriteCache(gosnmp.OctetString, "oid", "x", sink)
	err := wc.Write(reqAt(time.Now()), models.Record{}, "y")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, producer.ErrResourceUnavailable) {
		t.Errorf("err = %v, want wrapping ErrResourceUnavailable", err)
	}
}

var errTestSink = &sinkErr{}

type sinkErr struct{}

func (*sinkErr) Error() string { return "sink unavailable" }

// ── Dynamic ──────────────────────────────────────────────────────────────────

func TestDynamic_UnknownCurveRejected(t *testing.T) {
	_, err := producer.NewDynamic("no-such-curve", time.Now(), gosnmp.Gauge32, 1, 0)
	if err == nil {
		t.Fatal("expected error for unknown curve")
	}
}

func TestDynamic_SineBounded(t *testing.T) {
	start := time.Now()
	d, err := producer.NewDynamic("sine", start, gosnmp.Integer, 100, 100)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	for _, offset := range []time.Duration{0, 15 * time.Second, 30 * time.Second, 45 * time.Second} {
		_, v, _ := d.Read(reqAt(start.Add(offset)), models.Record{})
		n := v.(int)
		if n < 0 || n > 200 {
			t.Errorf("sine value out of [0,200] bound: %d", n)
		}
	}
}
