package behavior

import (
	"math/rand"

	"github.com/mocksnmp/agentsim/models"
)

// BuildFromConfig assembles the fixed-order Chain from decoded behavior
// configuration: resource gate, AgentX delay, MIB boundary injector, error
// injector, global delay, drop. A disabled stage is still installed as a
// no-op so the order and count of stages never depends on configuration.
func BuildFromConfig(cfg models.BehaviorsConfig, rng *rand.Rand) *Chain {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	maxConcurrent := cfg.Resource.MaxConcurrent
	if !cfg.Resource.Enabled || maxConcurrent <= 0 {
		maxConcurrent = 1 << 20 // effectively unbounded
	}
	gate := NewResourceGate(maxConcurrent, false)

	var agentxDelays map[string]int
	var regTimeoutPct float64
	if cfg.AgentX.Enabled {
		agentxDelays = cfg.AgentX.SubagentDelays
		regTimeoutPct = cfg.AgentX.RegTimeoutPct
	}
	agentx := NewAgentXDelay(agentxDelays, regTimeoutPct, rng)

	boundary := NewBoundaryInjector(cfg.Boundaries.MIBViewEnd, cfg.Boundaries.MissingObjects)

	var errRate float64
	var errKinds []string
	var errPerOID map[string]string
	if cfg.Errors.Enabled {
		errRate = cfg.Errors.RatePct
		errKinds = cfg.Errors.Kinds
		errPerOID = cfg.Errors.PerOID
	}
	errInjector := NewErrorInjector(errRate, errKinds, errPerOID, rng)

	var delayBase, delayDev int
	var delayDist string
	var delayPerOID map[string]int
	if cfg.Delay.Enabled {
		delayBase = cfg.Delay.GlobalMS
		delayDev = cfg.Delay.DeviationMS
		delayDist = cfg.Delay.Distribution
		delayPerOID = cfg.Delay.PerOID
	}
	globalDelay := NewGlobalDelay(delayBase, delayDev, delayDist, delayPerOID, rng)

	var dropRate float64
	var dropSide string
	if cfg.Drops.Enabled {
		dropRate = cfg.Drops.RatePct
		dropSide = cfg.Drops.Side
	}
	drop := NewDrop(dropRate, dropSide, rng)

	return New(gate, agentx, boundary, errInjector, globalDelay, drop)
}
