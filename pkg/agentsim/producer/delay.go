package producer

import (
	"math/rand"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// Delay wraps another producer's value and, on read, adds a sampled delay
// to the request's delay budget. It never blocks itself — the Transport's
// send scheduler (not this producer) realizes the wait, per the rule that
// no worker goroutine ever sleeps to implement a delay.
type Delay struct {
	Inner       Producer
	BaseMS      int
	DeviationMS int
	rng         *rand.Rand
}

// NewDelay wraps inner with a delay of baseMS ± deviationMS (uniform).
func NewDelay(inner Producer, baseMS, deviationMS int, rng *rand.Rand) *Delay {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Delay{Inner: inner, BaseMS: baseMS, DeviationMS: deviationMS, rng: rng}
}

// Read implements Producer.
func (d *Delay) Read(ctx *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error) {
	budget := d.BaseMS
	if d.DeviationMS > 0 {
		budget += d.rng.Intn(2*d.DeviationMS+1) - d.DeviationMS
	}
	if budget < 0 {
		budget = 0
	}
	ctx.Derived.DelayBudgetMS += budget

	if d.Inner != nil {
		return d.Inner.Read(ctx, rec)
	}
	return rec.Type, rec.Value, nil
}
