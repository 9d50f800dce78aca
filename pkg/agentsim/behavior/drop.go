package behavior

import (
	"math/rand"

	"github.com/mocksnmp/agentsim/models"
)

// Drop runs a Bernoulli trial on every request and marks it to be silently
// dropped (no response sent) on success. side controls whether the request
// itself is treated as never-arrived ("request") or the computed response
// is discarded after the fact ("response", the default).
type Drop struct {
	ratePct float64
	side    string
	rng     *rand.Rand
}

// NewDrop builds a Drop interceptor. An empty side defaults to "response".
func NewDrop(ratePct float64, side string, rng *rand.Rand) *Drop {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if side == "" {
		side = "response"
	}
	return &Drop{ratePct: ratePct, side: side, rng: rng}
}

// BeforeLookup implements Interceptor.
func (d *Drop) BeforeLookup(ctx *models.RequestContext) {
	if ctx.Derived.DropDecision {
		return
	}
	if d.ratePct > 0 && d.rng.Float64() < d.ratePct {
		ctx.Derived.DropDecision = true
		ctx.Derived.DropSide = d.side
	}
}

// AfterLookup implements Interceptor; nothing to do after lookup.
func (d *Drop) AfterLookup(*models.RequestContext, int) {}
