// Package simulation implements the Simulation Engine: a single cooperative
// scheduler that ticks at a configurable granularity to advance counter
// producers (publishing wrap events), fire state-machine transitions
// (installing/clearing context overlays), and run time-boxed scenarios that
// restore themselves on expiry. Its dispatch loop is grounded directly on
// the adapted scheduler's single-timer, sorted-entries design, generalized
// from per-device poll intervals to fixed-granularity ticks plus per-machine
// and per-scenario next-fire times in the same sorted list.
package simulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mocksnmp/agentsim/models"
	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"
	"github.com/mocksnmp/agentsim/pkg/agentsim/events"
	"github.com/mocksnmp/agentsim/pkg/agentsim/producer"
)

// Config controls the Simulation Engine's tick granularity.
type Config struct {
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	return c
}

// machineState pairs a state machine with the set of OIDs its current state
// has overlaid, so the engine can clear exactly those entries when the
// machine transitions away.
type machineState struct {
	m      *models.StateMachine
	active map[string]bool
}

// counterWatch samples a Counter producer once per tick to detect and
// publish wrap events. Counters are otherwise purely computed from elapsed
// time and need no tick-driven mutation.
type counterWatch struct {
	name    string
	counter *producer.Counter
	last    uint64
	primed  bool
}

// ScenarioStep is one reversible mutation a scenario applies for its
// duration. Apply is called when the scenario starts; Restore when it ends
// or is stopped early, in reverse step order.
type ScenarioStep interface {
	Apply()
	Restore()
}

type scenario struct {
	id    string
	steps []ScenarioStep
	endAt time.Time
}

// Engine is the Simulation Engine. It owns no Record Store directly — state
// machines write through the Context Resolver's overlay map, and counters
// are read-only from the engine's perspective.
type Engine struct {
	cfg      Config
	resolver *agentctx.Resolver
	bus      *events.Bus

	mu          sync.Mutex
	machines    []*machineState
	counters    []*counterWatch
	scenarios   map[string]*scenario
	scenarioSeq uint64

	running bool
	done    chan struct{}
}

// New builds an Engine. Call Start to begin ticking.
func New(cfg Config, resolver *agentctx.Resolver, bus *events.Bus) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		resolver:  resolver,
		bus:       bus,
		scenarios: make(map[string]*scenario),
	}
}

// SetResolver atomically replaces the Context Resolver that state-machine
// transitions write overlays into, used by a Control Surface reload that
// rebuilds the Context Resolver.
func (e *Engine) SetResolver(resolver *agentctx.Resolver) {
	e.mu.Lock()
	e.resolver = resolver
	e.mu.Unlock()
}

// AddStateMachine registers m with the engine. Call before Start or while
// stopped; the tick loop is the only concurrent reader of the machine list
// once running.
func (e *Engine) AddStateMachine(m *models.StateMachine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m.EnteredAt.IsZero() {
		m.EnteredAt = time.Now()
	}
	e.machines = append(e.machines, &machineState{m: m, active: make(map[string]bool)})
}

// AddCounterWatch registers a Counter producer for wrap detection, reported
// under name in published wrap events.
func (e *Engine) AddCounterWatch(name string, c *producer.Counter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = append(e.counters, &counterWatch{name: name, counter: c})
}

// Start launches the tick loop. It does not block.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop waits for the tick loop to exit. The caller must cancel the context
// passed to Start first.
func (e *Engine) Stop() {
	e.mu.Lock()
	done := e.done
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	<-done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		now := time.Now()
		next := now.Add(e.cfg.TickInterval)

		e.mu.Lock()
		for _, s := range e.scenarios {
			if s.endAt.Before(next) {
				next = s.endAt
			}
		}
		e.mu.Unlock()

		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e.tick(time.Now())
	}
}

// tick runs one pass: expire due scenarios, fire due state-machine
// transitions, and sample counters for wraps. Grounded on the adapted
// scheduler's "fire all due, then reschedule" inner loop.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	var expired []*scenario
	for id, s := range e.scenarios {
		if !s.endAt.After(now) {
			expired = append(expired, s)
			delete(e.scenarios, id)
		}
	}
	machines := append([]*machineState(nil), e.machines...)
	counters := append([]*counterWatch(nil), e.counters...)
	resolver := e.resolver
	e.mu.Unlock()

	for _, s := range expired {
		restoreScenario(s)
		e.bus.Publish("state", events.Event{Kind: "scenario_stop", Time: now, Detail: s.id})
	}
	for _, ms := range machines {
		e.fireIfDue(ms, now, resolver)
	}
	for _, cw := range counters {
		e.checkWrap(cw, now)
	}
}

func (e *Engine) fireIfDue(ms *machineState, now time.Time, resolver *agentctx.Resolver) {
	t, ok := ms.m.Due(now)
	if !ok {
		return
	}
	from := ms.m.State

	for oidStr := range ms.active {
		if oid, err := models.ParseOID(oidStr); err == nil {
			resolver.ClearOverlay(ms.m.ContextRef, oid)
		}
	}

	active := make(map[string]bool, len(t.Overlays))
	for oidStr, rec := range t.Overlays {
		oid, err := models.ParseOID(oidStr)
		if err != nil {
			continue
		}
		resolver.SetOverlay(ms.m.ContextRef, oid, rec)
		active[oidStr] = true
	}
	ms.active = active
	ms.m.State = t.ToState
	ms.m.EnteredAt = now

	e.bus.Publish("state", events.Event{
		Kind:   "transition",
		Time:   now,
		Detail: fmt.Sprintf("%s: %s -> %s", ms.m.DeviceID, from, t.ToState),
		Fields: map[string]string{"device_id": ms.m.DeviceID, "from": string(from), "to": string(t.ToState)},
	})
}

func (e *Engine) checkWrap(cw *counterWatch, now time.Time) {
	value := sampleCounter(cw.counter, now)
	if cw.primed && value < cw.last {
		e.bus.Publish("metrics", events.Event{
			Kind:   "counter_wrap",
			Time:   now,
			Detail: fmt.Sprintf("%s wrapped", cw.name),
			Fields: map[string]string{"name": cw.name},
		})
	}
	cw.last = value
	cw.primed = true
}

func sampleCounter(c *producer.Counter, now time.Time) uint64 {
	req := &models.RequestContext{RecvTime: now}
	_, val, err := c.Read(req, models.Record{})
	if err != nil {
		return 0
	}
	switch v := val.(type) {
	case uint32:
		return uint64(v)
	case uint64:
		return v
	default:
		return 0
	}
}

// StartScenario applies steps immediately and schedules their reversal after
// duration, returning an id StopScenario can use to cancel early.
func (e *Engine) StartScenario(steps []ScenarioStep, duration time.Duration) string {
	for _, s := range steps {
		s.Apply()
	}
	id := fmt.Sprintf("scn-%d", atomic.AddUint64(&e.scenarioSeq, 1))
	e.mu.Lock()
	e.scenarios[id] = &scenario{id: id, steps: steps, endAt: time.Now().Add(duration)}
	e.mu.Unlock()
	e.bus.Publish("state", events.Event{Kind: "scenario_start", Time: time.Now(), Detail: id})
	return id
}

// StopScenario restores id's steps early and cancels its scheduled expiry.
// Reports false if id is unknown (already expired or never existed).
func (e *Engine) StopScenario(id string) bool {
	e.mu.Lock()
	s, ok := e.scenarios[id]
	if ok {
		delete(e.scenarios, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	restoreScenario(s)
	e.bus.Publish("state", events.Event{Kind: "scenario_stop", Time: time.Now(), Detail: id})
	return true
}

func restoreScenario(s *scenario) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		s.steps[i].Restore()
	}
}

// OverlayStep is a ScenarioStep that installs a context overlay for its
// duration, restoring whatever overlay (or absence of one) was there
// before. Control Surface-driven scenarios are built from these.
type OverlayStep struct {
	Resolver   *agentctx.Resolver
	ContextRef string
	OID        models.OID
	Value      models.Record

	prior   models.Record
	priorOK bool
}

func (s *OverlayStep) Apply() {
	s.prior, s.priorOK = s.Resolver.Overlay(s.ContextRef, s.OID)
	s.Resolver.SetOverlay(s.ContextRef, s.OID, s.Value)
}

func (s *OverlayStep) Restore() {
	if s.priorOK {
		s.Resolver.SetOverlay(s.ContextRef, s.OID, s.prior)
		return
	}
	s.Resolver.ClearOverlay(s.ContextRef, s.OID)
}
