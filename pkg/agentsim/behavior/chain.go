// Package behavior implements the Behavior Chain: a fixed-order list of
// interceptors that run around every Record Store lookup to simulate
// resource pressure, subsystem delay, MIB view boundaries, injected errors,
// network delay, and packet loss.
package behavior

import "github.com/mocksnmp/agentsim/models"

// Interceptor is one stage of the chain. BeforeLookup runs before the
// Record Store is consulted and may short-circuit later stages by setting
// ctx.Derived.DropDecision or ctx.Derived.ErrorOverride; AfterLookup runs
// once a varbind's lookup result is known. Both hooks must be idempotent
// with respect to ctx.Derived (safe to no-op if already set) and must never
// mutate the Record Store.
type Interceptor interface {
	BeforeLookup(ctx *models.RequestContext)
	AfterLookup(ctx *models.RequestContext, varbindIndex int)
}

// Chain runs interceptors in a fixed order: resource gate, AgentX subsystem
// delay, MIB boundary injector, error injector, global delay, drop.
type Chain struct {
	stages []Interceptor
}

// New builds a Chain from already-constructed stages, in the order they
// should run. Callers assemble the 6 fixed stages via the constructors in
// this package (NewResourceGate, NewAgentXDelay, ...).
func New(stages ...Interceptor) *Chain {
	return &Chain{stages: stages}
}

// RunBefore executes every stage's BeforeLookup in order. A stage that sets
// ctx.Derived.DropDecision does not stop later stages from running — later
// stages are still expected to be idempotent and inexpensive — but the
// Protocol Engine checks DropDecision before proceeding to the Record Store.
func (c *Chain) RunBefore(ctx *models.RequestContext) {
	for _, s := range c.stages {
		s.BeforeLookup(ctx)
	}
}

// RunAfter executes every stage's AfterLookup in order for the given
// varbind index.
func (c *Chain) RunAfter(ctx *models.RequestContext, varbindIndex int) {
	for _, s := range c.stages {
		s.AfterLookup(ctx, varbindIndex)
	}
}
