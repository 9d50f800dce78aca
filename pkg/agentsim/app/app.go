// Package app wires the agent simulator's components together and manages
// their lifecycle: loading configuration, building the Record Stores and
// their Value Producers from record files, assembling the Context Resolver,
// the Behavior Chain, the Protocol Engine, the Simulation Engine and its
// state machines and counter watches, the Control Surface, and one
// Transport per configured endpoint.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/behavior"
	"github.com/mocksnmp/agentsim/pkg/agentsim/config"
	agentctx "github.com/mocksnmp/agentsim/pkg/agentsim/context"
	"github.com/mocksnmp/agentsim/pkg/agentsim/control"
	"github.com/mocksnmp/agentsim/pkg/agentsim/engine"
	"github.com/mocksnmp/agentsim/pkg/agentsim/events"
	"github.com/mocksnmp/agentsim/pkg/agentsim/persist"
	"github.com/mocksnmp/agentsim/pkg/agentsim/producer"
	"github.com/mocksnmp/agentsim/pkg/agentsim/simulation"
	"github.com/mocksnmp/agentsim/pkg/agentsim/store"
	"github.com/mocksnmp/agentsim/pkg/agentsim/transport"
	"github.com/mocksnmp/agentsim/pkg/agentsim/usm"
	"github.com/mocksnmp/agentsim/recfile"
)

// Config holds the top-level settings for the simulator application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths are the directories for YAML configuration files. Use
	// config.PathsFromEnv() to populate from the environment.
	ConfigPaths config.Paths

	// PersistPath is the write-cache durability file backing WriteCache
	// producers across a simulated restart. Default: "agentsim_writecache.log".
	PersistPath string

	// EngineID seeds the simulator's own SNMPv3 engine identity.
	// Default: "agentsim-simulator".
	EngineID string

	// TickInterval is the Simulation Engine's scheduling granularity.
	// Default: 100ms.
	TickInterval time.Duration

	// EventBusCapacity bounds how many unconsumed events each subscriber
	// topic buffers before Publish starts dropping. Default: 256.
	EventBusCapacity int
}

func (c *Config) withDefaults() {
	if c.PersistPath == "" {
		c.PersistPath = "agentsim_writecache.log"
	}
	if c.EngineID == "" {
		c.EngineID = "agentsim-simulator"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.EventBusCapacity <= 0 {
		c.EventBusCapacity = 256
	}
}

// producerLocation records where a loaded OID's producer lives, so a
// models.CounterConfig entry naming that OID can re-target it.
type producerLocation struct {
	registry *producer.Registry
	ref      string
}

// counterWatchReg is a counter watch the Simulation Engine should track for
// wrap events, collected while the pipeline is built and registered once the
// engine exists.
type counterWatchReg struct {
	name    string
	counter *producer.Counter
}

// App orchestrates the full agent simulator pipeline. Create one with New,
// start it with Start, and stop it with Stop (or cancel the passed-in
// context).
type App struct {
	cfg    Config
	logger *slog.Logger

	persistStore *persist.Store
	users        *usm.Users
	selfEngine   *usm.Engine
	eng          *engine.Engine
	bus          *events.Bus
	sim          *simulation.Engine
	surface      *control.Surface
	transports   []*transport.Transport

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	restartCfg models.RestartConfig
}

// New constructs an App. It does not start anything — call Start for that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	cfg.withDefaults()
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Surface returns the Control Surface, for wiring an external REST facade.
// Valid only after Start returns successfully.
func (a *App) Surface() *control.Surface {
	return a.surface
}

// Start loads configuration, builds the pipeline, and launches the
// Simulation Engine's tick loop and one Transport per configured endpoint.
// The caller must eventually call Stop to release resources.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("app: loading configuration")
	cfg, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}

	persistStore, err := persist.Open(a.cfg.PersistPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: open write-cache store: %w", err)
	}
	a.persistStore = persistStore

	replayed, err := a.persistStore.Replay()
	if err != nil {
		return fmt.Errorf("app: replay write cache: %w", err)
	}

	stores, resolver, chain, counters, err := a.buildPipeline(cfg, replayed)
	if err != nil {
		return fmt.Errorf("app: build pipeline: %w", err)
	}

	a.selfEngine = usm.NewEngine(a.cfg.EngineID)
	a.users = usm.NewUsers()
	if err := a.users.Load(cfg.V3Users, a.selfEngine.ID()); err != nil {
		return fmt.Errorf("app: load usm users: %w", err)
	}

	a.eng = engine.New(stores, resolver, chain, cfg.Limits)
	a.bus = events.NewBus(a.cfg.EventBusCapacity)
	a.sim = simulation.New(simulation.Config{TickInterval: a.cfg.TickInterval}, resolver, a.bus)

	machines, err := simulation.BuildStateMachines(cfg.StateMachines)
	if err != nil {
		return fmt.Errorf("app: build state machines: %w", err)
	}
	for _, m := range machines {
		a.sim.AddStateMachine(m)
	}
	for _, cw := range counters {
		a.sim.AddCounterWatch(cw.name, cw.counter)
	}

	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.sim.Start(pipeCtx)

	a.surface = control.New(cfg, stores, resolver, a.eng, a.sim, a.bus, a.Reload)

	a.transports = a.transports[:0]
	for _, ep := range cfg.Endpoints {
		tr := transport.New(transport.Config{
			Addr:             ep.UDP,
			PDUMaxBytes:      cfg.Limits.PDUMaxBytes,
			PerRequestBudget: cfg.PerRequestBudget(),
		}, a.eng, a.users, a.selfEngine, a.logger)
		if err := tr.Start(pipeCtx); err != nil {
			return fmt.Errorf("app: start transport %s: %w", ep.UDP, err)
		}
		a.transports = append(a.transports, tr)
	}

	a.mu.Lock()
	a.restartCfg = cfg.Restart
	a.mu.Unlock()
	if cfg.Restart.Enabled {
		a.wg.Add(1)
		go a.restartLoop(pipeCtx)
	}

	a.logger.Info("app: pipeline running",
		"endpoints", len(cfg.Endpoints),
		"contexts", len(cfg.Contexts),
		"state_machines", len(machines),
	)
	return nil
}

// Stop performs a graceful shutdown: cancel the pipeline context, stop every
// transport and the Simulation Engine, wait for the restart loop to exit,
// then flush and close the write-cache store.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	for _, tr := range a.transports {
		tr.Stop()
	}
	if a.sim != nil {
		a.sim.Stop()
	}
	a.wg.Wait()

	if a.persistStore != nil {
		if err := a.persistStore.Close(); err != nil {
			a.logger.Error("app: write-cache close error", "error", err.Error())
		}
	}

	a.logger.Info("app: shutdown complete")
}

// Reload rebuilds the Record Stores, the Context Resolver, and the Behavior
// Chain from newCfg and swaps them into the running Protocol Engine,
// Simulation Engine, and Control Surface together, so every reload-aware
// component moves to the new generation in lockstep. It does not add or
// remove endpoints or state machines; those take effect on the next Start.
func (a *App) Reload(newCfg *models.Config) error {
	replayed, err := a.persistStore.Replay()
	if err != nil {
		return fmt.Errorf("app: reload: replay write cache: %w", err)
	}

	stores, resolver, chain, counters, err := a.buildPipeline(newCfg, replayed)
	if err != nil {
		return fmt.Errorf("app: reload: %w", err)
	}

	if err := a.users.Load(newCfg.V3Users, a.selfEngine.ID()); err != nil {
		return fmt.Errorf("app: reload: usm users: %w", err)
	}

	a.eng.SetStores(stores)
	a.eng.SetResolver(resolver)
	a.eng.SetChain(chain)
	a.sim.SetResolver(resolver)
	a.surface.Rebind(stores, resolver)
	for _, cw := range counters {
		a.sim.AddCounterWatch(cw.name, cw.counter)
	}

	a.mu.Lock()
	a.restartCfg = newCfg.Restart
	a.mu.Unlock()

	a.logger.Info("app: configuration reloaded",
		"contexts", len(newCfg.Contexts),
		"endpoints", len(newCfg.Endpoints),
	)
	return nil
}

// restartLoop drives the restart-simulation feature: every interval (jittered
// by up to jitterS in either direction) it quiesces every transport for the
// configured downtime, simulating the device rebooting.
func (a *App) restartLoop(ctx context.Context) {
	defer a.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		a.mu.Lock()
		cfg := a.restartCfg
		a.mu.Unlock()

		interval := time.Duration(cfg.IntervalS) * time.Second
		if cfg.JitterS > 0 {
			jitter := rng.Intn(2*cfg.JitterS+1) - cfg.JitterS
			interval += time.Duration(jitter) * time.Second
		}
		if interval <= 0 {
			interval = time.Second
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		downtime := time.Duration(cfg.DowntimeS) * time.Second
		var quiesceWg sync.WaitGroup
		for _, tr := range a.transports {
			quiesceWg.Add(1)
			go func(tr *transport.Transport) {
				defer quiesceWg.Done()
				if err := tr.Quiesce(downtime); err != nil {
					a.logger.Warn("app: restart simulation quiesce failed", "error", err.Error())
				}
			}(tr)
		}
		quiesceWg.Wait()
		a.bus.Publish("state", events.Event{
			Kind:   "restart",
			Time:   time.Now(),
			Detail: "simulated restart cycle completed",
		})
	}
}

// buildPipeline loads every context's record file, attaches Value Producers
// for variation-tagged entries, applies models.Config.Counters overrides,
// and assembles the Record Stores and the Context Resolver. replayed is the
// durable write-cache content (oidKey -> raw value) used to seed WriteCache
// producers across a simulated restart.
func (a *App) buildPipeline(cfg *models.Config, replayed map[string]string) (map[string]*store.Store, *agentctx.Resolver, *behavior.Chain, []counterWatchReg, error) {
	registries := make(map[string]*producer.Registry)
	records := make(map[string][]models.Record)
	index := make(map[string]producerLocation)

	for _, cc := range cfg.Contexts {
		if cc.StoreRef == "" {
			continue
		}
		if _, ok := registries[cc.StoreRef]; ok {
			continue
		}
		registry := producer.NewRegistry()
		registries[cc.StoreRef] = registry

		var recs []models.Record
		if cc.RecordFile != "" {
			path := cc.RecordFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.ConfigPaths.Root, path)
			}
			entries, err := recfile.Load(path)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("record file %s: %w", path, err)
			}
			for _, e := range entries {
				recs = append(recs, e.Record)
				if e.VariationTag == "" {
					continue
				}
				p, err := a.buildProducer(e, replayed)
				if err != nil {
					return nil, nil, nil, nil, fmt.Errorf("record %s: %w", e.Record.OID, err)
				}
				registry.Register(e.Record.ProducerRef, p)
				index[e.Record.OID.String()] = producerLocation{registry: registry, ref: e.Record.ProducerRef}
			}
		}
		records[cc.StoreRef] = recs
	}

	var watches []counterWatchReg
	for _, group := range cfg.Counters {
		phase := 0.0
		if group.Seed != 0 {
			phase = float64(rand.New(rand.NewSource(int64(group.Seed))).Intn(1000))
		}
		shared := producer.NewCounter(group.Bits, group.Rate, group.Acceleration, phase, time.Now())
		for _, oidStr := range group.OIDs {
			oid, err := models.ParseOID(oidStr)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("counter group oid %q: %w", oidStr, err)
			}
			loc, ok := index[oid.String()]
			if !ok {
				a.logger.Warn("app: counter group references an oid no record file defines, skipping", "oid", oidStr)
				continue
			}
			loc.registry.Register(loc.ref, shared)
			watches = append(watches, counterWatchReg{name: oidStr, counter: shared})
		}
	}

	stores := make(map[string]*store.Store, len(registries))
	for ref, registry := range registries {
		st := store.New(registry)
		st.Load(records[ref])
		stores[ref] = st
	}

	contexts, mappings, defaultContext, err := buildContexts(cfg.Contexts)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	resolver := agentctx.New(contexts, mappings, defaultContext)

	chain := behavior.BuildFromConfig(cfg.Behaviors, rand.New(rand.NewSource(time.Now().UnixNano())))

	return stores, resolver, chain, watches, nil
}

// buildProducer builds the Value Producer a record-file variation tag names,
// seeding a writecache producer from its durably replayed value if one
// exists.
func (a *App) buildProducer(e recfile.Entry, replayed map[string]string) (producer.Producer, error) {
	switch e.VariationTag {
	case "counter":
		bits := paramInt(e.Params, "bits", 32)
		rate := paramFloat(e.Params, "rate", 1)
		acceleration := paramFloat(e.Params, "acceleration", 1)
		seed := paramUint(e.Params, "seed", 0)
		phase := 0.0
		if seed != 0 {
			phase = float64(rand.New(rand.NewSource(int64(seed))).Intn(1000))
		}
		return producer.NewCounter(bits, rate, acceleration, phase, time.Now()), nil

	case "dynamic":
		curve := e.Params["curve"]
		if curve == "" {
			curve = "linear-ramp"
		}
		amplitude := paramFloat(e.Params, "amplitude", 1)
		offset := paramFloat(e.Params, "offset", 0)
		return producer.NewDynamic(curve, time.Now(), e.Record.Type, amplitude, offset)

	case "delay":
		baseMS := paramInt(e.Params, "base_ms", 0)
		deviationMS := paramInt(e.Params, "deviation_ms", 0)
		return producer.NewDelay(nil, baseMS, deviationMS, nil), nil

	case "error":
		return producer.NewErrorProducer(errorStatusByName(e.Params["status"])), nil

	case "writecache":
		initial := e.Record.Value
		if raw, ok := replayed[e.Record.OID.String()]; ok {
			value, err := parseReplayedValue(e.Record.Type, raw)
			if err != nil {
				a.logger.Warn("app: discarding unreadable replayed write-cache value",
					"oid", e.Record.OID.String(), "error", err.Error())
			} else {
				initial = value
			}
		}
		return producer.NewWriteCache(e.Record.Type, e.Record.OID.String(), initial, a.persistStore), nil

	default:
		return nil, fmt.Errorf("unknown variation tag %q", e.VariationTag)
	}
}

// buildContexts converts the on-disk context configuration into the
// models.Context and models.CommunityMapping values the Context Resolver
// expects, parsing denied-OID patterns and pre-seeded OID overrides.
func buildContexts(ccs []models.ContextConfig) ([]models.Context, []models.CommunityMapping, string, error) {
	contexts := make([]models.Context, 0, len(ccs))
	var mappings []models.CommunityMapping
	defaultContext := ""

	for _, cc := range ccs {
		if defaultContext == "" {
			defaultContext = cc.Name
		}

		denied := make([]models.OID, 0, len(cc.DeniedPatterns))
		for _, p := range cc.DeniedPatterns {
			oid, err := models.ParseOID(p)
			if err != nil {
				return nil, nil, "", fmt.Errorf("context %s: denied pattern %q: %w", cc.Name, p, err)
			}
			denied = append(denied, oid)
		}

		overrides := make(map[string]models.Record, len(cc.OIDOverrides))
		for oidStr, typeValue := range cc.OIDOverrides {
			oid, err := models.ParseOID(oidStr)
			if err != nil {
				return nil, nil, "", fmt.Errorf("context %s: oid override %q: %w", cc.Name, oidStr, err)
			}
			asnType, value, err := recfile.ParseTypeValue(typeValue)
			if err != nil {
				return nil, nil, "", fmt.Errorf("context %s: oid override %s: %w", cc.Name, oidStr, err)
			}
			overrides[oidStr] = models.Record{OID: oid, Type: asnType, Value: value}
		}

		contexts = append(contexts, models.Context{
			Name:              cc.Name,
			StoreRef:          cc.StoreRef,
			AllowedUsers:      cc.AllowedUsers,
			DeniedOIDPatterns: denied,
			OIDOverrides:      overrides,
		})

		for _, community := range cc.Communities {
			mappings = append(mappings, models.CommunityMapping{Community: community, Context: cc.Name})
		}
	}

	return contexts, mappings, defaultContext, nil
}

// producerErrorStatusByName maps a record file's error variation tag status
// parameter to the SNMP errorStatus it signals. Kept local to this package:
// the Behavior Chain's own name table serves error-injector configuration,
// not record-file producers, and is unexported.
var producerErrorStatusByName = map[string]gosnmp.SNMPError{
	"noSuchName":          gosnmp.NoSuchName,
	"genErr":              gosnmp.GenErr,
	"noAccess":            gosnmp.NoAccess,
	"resourceUnavailable": gosnmp.ResourceUnavailable,
	"authorizationError":  gosnmp.AuthorizationError,
	"tooBig":              gosnmp.TooBig,
	"badValue":            gosnmp.BadValue,
}

func errorStatusByName(name string) gosnmp.SNMPError {
	if status, ok := producerErrorStatusByName[name]; ok {
		return status
	}
	return gosnmp.GenErr
}

// replayTypeCodes mirrors recfile's own type-code table (unexported there)
// so a durably replayed raw value can be re-parsed through
// recfile.ParseTypeValue without re-deriving the value-parsing rules here.
var replayTypeCodes = map[gosnmp.Asn1BER]string{
	gosnmp.Integer:          "2",
	gosnmp.OctetString:      "4",
	gosnmp.ObjectIdentifier: "6",
	gosnmp.IPAddress:        "64",
	gosnmp.Counter32:        "65",
	gosnmp.Gauge32:          "66",
	gosnmp.TimeTicks:        "67",
	gosnmp.Counter64:        "70",
}

func parseReplayedValue(asnType gosnmp.Asn1BER, raw string) (any, error) {
	code, ok := replayTypeCodes[asnType]
	if !ok {
		return nil, fmt.Errorf("no record-file type code for asn1 type %v", asnType)
	}
	_, value, err := recfile.ParseTypeValue(code + ":" + raw)
	return value, err
}

func paramInt(params map[string]string, key string, def int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func paramFloat(params map[string]string, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func paramUint(params map[string]string, key string, def uint64) uint64 {
	if v, ok := params[key]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
