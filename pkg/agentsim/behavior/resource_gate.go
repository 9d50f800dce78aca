package behavior

import (
	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// ResourceGate models a bounded in-flight request limit with a
// buffered-channel semaphore, the same acquire/release shape as a
// per-device connection pool's concurrency slot. When the limit is
// exceeded it either sets errorStatus=tooBig or drops the request,
// depending on configuration.
type ResourceGate struct {
	sem         chan struct{}
	dropOnLimit bool
}

// NewResourceGate creates a gate allowing up to maxConcurrent in-flight
// requests. dropOnLimit selects drop-on-exhaustion instead of tooBig.
func NewResourceGate(maxConcurrent int, dropOnLimit bool) *ResourceGate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ResourceGate{sem: make(chan struct{}, maxConcurrent), dropOnLimit: dropOnLimit}
}

// BeforeLookup implements Interceptor. It never blocks: a full semaphore is
// treated as "over threshold" immediately rather than waiting.
func (g *ResourceGate) BeforeLookup(ctx *models.RequestContext) {
	if ctx.Derived.ResourceGateHeld {
		return // already acquired for this request; BeforeLookup may run once per varbind
	}
	select {
	case g.sem <- struct{}{}:
		ctx.Derived.ResourceGateHeld = true
	default:
		if g.dropOnLimit {
			ctx.Derived.DropDecision = true
			ctx.Derived.DropSide = "request"
			return
		}
		if ctx.Derived.ErrorOverride == nil {
			status := gosnmp.TooBig
			ctx.Derived.ErrorOverride = &status
		}
	}
}

// AfterLookup releases the semaphore slot once, after the last varbind in
// the PDU has been processed.
func (g *ResourceGate) AfterLookup(ctx *models.RequestContext, varbindIndex int) {
	if varbindIndex != len(ctx.Varbinds)-1 || !ctx.Derived.ResourceGateHeld {
		return
	}
	ctx.Derived.ResourceGateHeld = false
	<-g.sem
}
