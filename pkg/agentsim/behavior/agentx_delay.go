package behavior

import (
	"math/rand"
	"strings"

	"github.com/mocksnmp/agentsim/models"
)

// AgentXDelay adds a subtree-specific delay to the request's delay budget,
// modeling an AgentX subagent's own processing latency. The longest
// matching OID prefix wins, found by peeling arcs from the right — the
// same right-to-left prefix scan used to resolve table-vs-scalar attribute
// matches, here applied in the opposite direction (longest, not first).
type AgentXDelay struct {
	// delays maps a dotted OID prefix to its delay in milliseconds.
	delays map[string]int

	// regTimeoutPct is the probability [0,1] that a matching request is
	// dropped entirely, modeling a subagent that failed to register.
	regTimeoutPct float64
	rng           *rand.Rand
}

// NewAgentXDelay builds an AgentXDelay interceptor from a prefix->ms table.
func NewAgentXDelay(delays map[string]int, regTimeoutPct float64, rng *rand.Rand) *AgentXDelay {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &AgentXDelay{delays: delays, regTimeoutPct: regTimeoutPct, rng: rng}
}

// BeforeLookup implements Interceptor.
func (a *AgentXDelay) BeforeLookup(ctx *models.RequestContext) {
	if len(a.delays) == 0 || len(ctx.Varbinds) == 0 {
		return
	}
	oid := strings.TrimPrefix(ctx.Varbinds[0].Name, ".")
	ms, ok := a.longestPrefixMatch(oid)
	if !ok {
		return
	}
	ctx.Derived.DelayBudgetMS += ms

	if a.regTimeoutPct > 0 && a.rng.Float64() < a.regTimeoutPct {
		ctx.Derived.RegistrationDrop = true
		ctx.Derived.DropDecision = true
		ctx.Derived.DropSide = "response"
	}
}

// AfterLookup implements Interceptor; AgentX delay has nothing to do after
// lookup.
func (a *AgentXDelay) AfterLookup(*models.RequestContext, int) {}

// longestPrefixMatch peels trailing OID arcs one at a time until a
// configured prefix is found, so "1.3.6.1.4.1.9.9.13.1.3.1.3.1" matches a
// configured "1.3.6.1.4.1.9.9.13" entry rather than a shorter ancestor.
func (a *AgentXDelay) longestPrefixMatch(oid string) (int, bool) {
	remaining := oid
	for {
		if ms, ok := a.delays[remaining]; ok {
			return ms, true
		}
		dot := strings.LastIndex(remaining, ".")
		if dot < 0 {
			return 0, false
		}
		remaining = remaining[:dot]
	}
}
