package usm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// maxTimeWindowSeconds is the RFC 3414 §3.2 step 7e tolerance: a message is
// rejected if its claimed engineTime differs from the local value by more
// than this many seconds.
const maxTimeWindowSeconds = 150

// Engine owns the simulator's own authoritative engineID/engineBoots/
// engineTime triple (the "self" side of USM, as opposed to USMSession which
// tracks what a remote user last presented). engineBoots increments across
// a restart simulation; engineTime counts seconds from process start and
// resets to 0 on each simulated restart.
type Engine struct {
	id        string
	boots     uint32
	startedAt time.Time

	mu sync.Mutex
}

// NewEngine creates an Engine identity. engineBoots starts at 1 per RFC
// 3414 §2.2.2 (0 is reserved).
func NewEngine(id string) *Engine {
	return &Engine{id: id, boots: 1, startedAt: time.Now()}
}

// ID returns the engine's identifier.
func (e *Engine) ID() string { return e.id }

// Boots returns the current engineBoots value.
func (e *Engine) Boots() uint32 {
	return atomic.LoadUint32(&e.boots)
}

// Time returns the current engineTime value: whole seconds since this
// Engine (or its last simulated restart) started.
func (e *Engine) Time() uint32 {
	e.mu.Lock()
	started := e.startedAt
	e.mu.Unlock()
	return uint32(time.Since(started).Seconds())
}

// Restart increments engineBoots and resets engineTime to 0, modeling a
// Transport restart simulation: v3 clients must rediscover after this.
func (e *Engine) Restart() {
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()
	atomic.AddUint32(&e.boots, 1)
}

// CheckTimeWindow validates a remote principal's claimed engineBoots/
// engineTime against this Engine's authoritative values, per RFC 3414
// §3.2 step 7: the boots value must match exactly and the time value must
// be within ±150 seconds.
func (e *Engine) CheckTimeWindow(remoteBoots, remoteTime uint32) error {
	localBoots := e.Boots()
	localTime := e.Time()

	if remoteBoots != localBoots {
		return fmt.Errorf("usm: notInTimeWindow: engineBoots mismatch (remote %d, local %d)", remoteBoots, localBoots)
	}
	diff := int64(remoteTime) - int64(localTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxTimeWindowSeconds {
		return fmt.Errorf("usm: notInTimeWindow: engineTime drift %ds exceeds %ds window", diff, maxTimeWindowSeconds)
	}
	return nil
}

// DiscoveryReport is the engineID/boots/time triple an unauthenticated
// discovery Report PDU reveals to a client that has not yet synchronized.
type DiscoveryReport struct {
	EngineID    string
	EngineBoots uint32
	EngineTime  uint32
}

// Discover builds the triple a Report PDU carries in response to an
// unauthenticated probe.
func (e *Engine) Discover() DiscoveryReport {
	return DiscoveryReport{EngineID: e.id, EngineBoots: e.Boots(), EngineTime: e.Time()}
}
