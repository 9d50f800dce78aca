package producer

import (
	"fmt"
	"math"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// CurveFunc computes a value given the elapsed time since the engine
// started. The closed set below is registered by name; no code is ever
// loaded at runtime.
type CurveFunc func(elapsed time.Duration) float64

// Curves is the closed set of named dynamic value curves.
var Curves = map[string]CurveFunc{
	"diurnal":     diurnalCurve,
	"linear-ramp": linearRampCurve,
	"sine":        sineCurve,
}

// Dynamic computes a value from a named curve, a start instant, and an
// output cast (integer or gauge). It never executes configuration-supplied
// code — only a name lookup into the Curves table above.
type Dynamic struct {
	curve     CurveFunc
	start     time.Time
	asnType   gosnmp.Asn1BER
	amplitude float64
	offset    float64
}

// NewDynamic builds a Dynamic producer from a curve name. amplitude and
// offset scale the curve's output (diurnal in [0,1], sine in [-1,1],
// linear-ramp unbounded elapsed seconds) into the domain of the reported
// metric.
func NewDynamic(curveName string, start time.Time, asnType gosnmp.Asn1BER, amplitude, offset float64) (*Dynamic, error) {
	curve, ok := Curves[curveName]
	if !ok {
		return nil, fmt.Errorf("producer: unknown dynamic curve %q", curveName)
	}
	return &Dynamic{curve: curve, start: start, asnType: asnType, amplitude: amplitude, offset: offset}, nil
}

// Read implements Producer.
func (d *Dynamic) Read(ctx *models.RequestContext, _ models.Record) (gosnmp.Asn1BER, any, error) {
	now := ctx.RecvTime
	if now.IsZero() {
		now = time.Now()
	}
	raw := d.offset + d.amplitude*d.curve(now.Sub(d.start))

	switch d.asnType {
	case gosnmp.Gauge32, gosnmp.Counter32, gosnmp.TimeTicks:
		return d.asnType, uint32(math.Max(0, raw)), nil
	case gosnmp.Counter64:
		return d.asnType, uint64(math.Max(0, raw)), nil
	default:
		return gosnmp.Integer, int(raw), nil
	}
}

// diurnalCurve models interface utilization rising and falling once per
// simulated 24h period, returning a value in [0,1].
func diurnalCurve(elapsed time.Duration) float64 {
	const period = 24 * time.Hour
	phase := 2 * math.Pi * (float64(elapsed%period) / float64(period))
	return (1 + math.Sin(phase-math.Pi/2)) / 2
}

// linearRampCurve returns a value that increases by 1 per elapsed second,
// unbounded (the caller's amplitude/offset and integer cast provide scale).
func linearRampCurve(elapsed time.Duration) float64 {
	return elapsed.Seconds()
}

// sineCurve returns a value in [-1,1] oscillating once per minute.
func sineCurve(elapsed time.Duration) float64 {
	const period = time.Minute
	phase := 2 * math.Pi * (float64(elapsed%period) / float64(period))
	return math.Sin(phase)
}
