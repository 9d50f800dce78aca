package producer

import (
	"math"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// Counter computes a monotonically-increasing (until it wraps) value as a
// pure function of elapsed wall-clock time: value = floor(phase +
// rate*acceleration*(t-t0)) mod 2^bits. Holding rate/acceleration fixed and
// sharing t0 across a group of related counters (e.g. ifInOctets and
// ifOutOctets on the same interface) keeps their ratio stable across wraps,
// mirroring the per-key wrap-aware bookkeeping the delta computation in the
// adapted pipeline used for the opposite direction (observed deltas instead
// of synthesized absolutes).
type Counter struct {
	bits         int // 32 or 64
	rate         float64
	acceleration float64
	phase        float64
	t0           time.Time
}

// NewCounter creates a Counter producer. t0 is the shared reference instant
// for this producer's group; pass the same t0 to every producer in the
// group so their relative phase never drifts.
func NewCounter(bits int, rate, acceleration, phase float64, t0 time.Time) *Counter {
	if bits != 32 && bits != 64 {
		bits = 32
	}
	return &Counter{bits: bits, rate: rate, acceleration: acceleration, phase: phase, t0: t0}
}

// Read implements Producer. The request's receive time drives the sample so
// that repeated reads within the same PDU (unlikely, but the store may call
// Read more than once per Get) are consistent.
func (c *Counter) Read(ctx *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error) {
	now := ctx.RecvTime
	if now.IsZero() {
		now = time.Now()
	}
	elapsed := now.Sub(c.t0).Seconds()
	raw := c.phase + c.rate*c.acceleration*elapsed

	if c.bits == 64 {
		wrapped := wrapFloat(raw, math.MaxUint64)
		return gosnmp.Counter64, uint64(wrapped), nil
	}
	wrapped := wrapFloat(raw, math.MaxUint32)
	return gosnmp.Counter32, uint32(wrapped), nil
}

// Bits reports the configured counter width (32 or 64), used by the
// Simulation Engine's wrap watcher to interpret sampled values.
func (c *Counter) Bits() int { return c.bits }

// wrapFloat reduces v modulo (max+1), handling negative v by wrapping
// forward rather than producing a negative result.
func wrapFloat(v float64, max uint64) float64 {
	modulus := float64(max) + 1
	r := math.Mod(v, modulus)
	if r < 0 {
		r += modulus
	}
	return r
}
