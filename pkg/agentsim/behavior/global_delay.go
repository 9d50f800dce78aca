package behavior

import (
	"math/rand"
	"strings"

	"github.com/mocksnmp/agentsim/models"
)

// GlobalDelay adds a baseline network delay to every request, sampled from
// a uniform or (approximated) normal distribution and truncated at 0, plus
// a fixed extra delay for any requested OID listed in perOID.
type GlobalDelay struct {
	baseMS      int
	deviationMS int
	normal      bool
	perOID      map[string]int
	rng         *rand.Rand
}

// NewGlobalDelay builds a GlobalDelay. distribution is "uniform" (default)
// or "normal". perOID maps an exact OID string to an additional fixed delay
// in milliseconds, applied on top of the sampled baseline for any varbind
// in the request that names it.
func NewGlobalDelay(baseMS, deviationMS int, distribution string, perOID map[string]int, rng *rand.Rand) *GlobalDelay {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &GlobalDelay{baseMS: baseMS, deviationMS: deviationMS, normal: distribution == "normal", perOID: perOID, rng: rng}
}

// BeforeLookup implements Interceptor.
func (g *GlobalDelay) BeforeLookup(ctx *models.RequestContext) {
	sample := g.baseMS
	switch {
	case g.deviationMS <= 0:
		// No jitter configured.
	case g.normal:
		sample += int(g.rng.NormFloat64() * float64(g.deviationMS))
	default:
		sample += g.rng.Intn(2*g.deviationMS+1) - g.deviationMS
	}
	if sample < 0 {
		sample = 0
	}
	for _, vb := range ctx.Varbinds {
		if extra, ok := g.perOID[strings.TrimPrefix(vb.Name, ".")]; ok {
			sample += extra
		}
	}
	ctx.Derived.DelayBudgetMS += sample
}

// AfterLookup implements Interceptor; nothing to do after lookup.
func (g *GlobalDelay) AfterLookup(*models.RequestContext, int) {}
