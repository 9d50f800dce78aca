package models

import "time"

// Config is the fully decoded, defaulted configuration tree for the
// simulator: endpoints, contexts, v3 users, behaviors, counters, state
// machines, restart policy, and limits. Each top-level section is loaded
// from its own YAML file by pkg/agentsim/config.
type Config struct {
	Endpoints     []EndpointConfig
	Contexts      []ContextConfig
	V3Users       []V3UserConfig
	Behaviors     BehaviorsConfig
	Counters      []CounterConfig
	StateMachines []StateMachineConfig
	Restart       RestartConfig
	Limits        LimitsConfig
}

// EndpointConfig binds one UDP listener.
type EndpointConfig struct {
	UDP string `yaml:"udp"`
}

// ContextConfig is the on-disk shape of models.Context plus the
// community→context mappings that select it for v1/v2c.
type ContextConfig struct {
	Name           string            `yaml:"name"`
	StoreRef       string            `yaml:"store_ref"`
	AllowedUsers   []string          `yaml:"allowed_users"`
	Communities    []string          `yaml:"communities"`
	OIDOverrides   map[string]string `yaml:"oid_overrides"` // oid -> "type-code:value" record-file syntax
	DeniedPatterns []string          `yaml:"denied_patterns"`
	RecordFile     string            `yaml:"record_file"`
}

// V3CredentialConfig names a protocol and the passphrase it localizes.
type V3CredentialConfig struct {
	Proto string `yaml:"proto"`
	Key   string `yaml:"key"`
}

// V3UserConfig is the on-disk shape of a configured SNMPv3 user.
type V3UserConfig struct {
	Username        string              `yaml:"username"`
	Auth            *V3CredentialConfig `yaml:"auth"`
	Priv            *V3CredentialConfig `yaml:"priv"`
	AllowedContexts []string            `yaml:"allowed_contexts"`
}

// BehaviorsConfig groups the Behavior Chain's configured interceptors.
type BehaviorsConfig struct {
	Delay      DelayBehaviorConfig      `yaml:"delay"`
	Drops      DropsBehaviorConfig      `yaml:"drops"`
	AgentX     AgentXBehaviorConfig     `yaml:"agentx"`
	Resource   ResourceBehaviorConfig   `yaml:"resource"`
	Errors     ErrorsBehaviorConfig     `yaml:"errors"`
	Boundaries BoundariesBehaviorConfig `yaml:"boundaries"`
}

type DelayBehaviorConfig struct {
	Enabled      bool           `yaml:"enabled"`
	GlobalMS     int            `yaml:"global_ms"`
	DeviationMS  int            `yaml:"deviation_ms"`
	Distribution string         `yaml:"distribution"` // "uniform" (default) | "normal"
	PerOID       map[string]int `yaml:"per_oid"`
}

type DropsBehaviorConfig struct {
	Enabled bool    `yaml:"enabled"`
	RatePct float64 `yaml:"rate_pct"`
	Side    string  `yaml:"side"` // "request" | "response" (default)
}

type AgentXBehaviorConfig struct {
	Enabled        bool           `yaml:"enabled"`
	SubagentDelays map[string]int `yaml:"subagent_delays"` // oid prefix -> ms
	RegTimeoutPct  float64        `yaml:"reg_timeout_pct"`
}

type ResourceBehaviorConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxConcurrent int  `yaml:"max_concurrent"`
	QueueDepth    int  `yaml:"queue_depth"`
	CPULimitPct   int  `yaml:"cpu_limit_pct"`
}

type ErrorsBehaviorConfig struct {
	Enabled bool              `yaml:"enabled"`
	RatePct float64           `yaml:"rate_pct"`
	Kinds   []string          `yaml:"kinds"`
	PerOID  map[string]string `yaml:"per_oid"`
}

type BoundariesBehaviorConfig struct {
	MIBViewEnd     map[string]string `yaml:"mib_view_end"`    // subtree prefix -> end oid
	MissingObjects []string          `yaml:"missing_objects"`
	SparseTables   map[string][]int  `yaml:"sparse_tables"` // table prefix -> present indices
}

// CounterConfig describes one or more Counter producers sharing a rate
// relationship (e.g. ifIn/ifOutOctets on the same interface).
type CounterConfig struct {
	OIDs         []string `yaml:"oids"`
	Bits         int      `yaml:"bits"` // 32 or 64
	Rate         float64  `yaml:"rate"`
	Acceleration float64  `yaml:"acceleration"`
	Seed         uint64   `yaml:"seed"`
}

// StateMachineConfig is the on-disk shape of models.StateMachine.
type StateMachineConfig struct {
	ID          string                  `yaml:"id"`
	ContextRef  string                  `yaml:"context_ref"`
	States      []string                `yaml:"states"`
	Transitions []StateTransitionConfig `yaml:"transitions"`
}

type StateTransitionConfig struct {
	From     string            `yaml:"from"`
	To       string            `yaml:"to"`
	DelayMS  int               `yaml:"delay_ms"`
	Overlays map[string]string `yaml:"overlays"` // oid -> "type-code:value"
}

// RestartConfig drives Transport's restart simulation.
type RestartConfig struct {
	Enabled   bool `yaml:"enabled"`
	IntervalS int  `yaml:"interval_s"`
	DowntimeS int  `yaml:"downtime_s"`
	JitterS   int  `yaml:"jitter_s"`
}

// LimitsConfig bounds PDU size, bulk repetitions, and per-request time.
type LimitsConfig struct {
	PDUMaxBytes        int `yaml:"pdu_max_bytes"`
	MaxRepetitionsCap  int `yaml:"max_repetitions_cap"`
	PerRequestBudgetMS int `yaml:"per_request_budget_ms"`
}

func (c *Config) withDefaults() {
	if c.Limits.PDUMaxBytes <= 0 {
		c.Limits.PDUMaxBytes = 1472
	}
	if c.Limits.MaxRepetitionsCap <= 0 {
		c.Limits.MaxRepetitionsCap = 1000
	}
	if c.Limits.PerRequestBudgetMS <= 0 {
		c.Limits.PerRequestBudgetMS = 2000
	}
	if c.Restart.JitterS < 0 {
		c.Restart.JitterS = 0
	}
}

// WithDefaults applies documented zero-value fallbacks and returns the
// receiver for chaining. Exported so pkg/agentsim/config can call it after
// decode without exposing the unexported helper across packages.
func (c *Config) WithDefaults() *Config {
	c.withDefaults()
	return c
}

// PerRequestBudget returns the configured per-PDU processing budget as a
// time.Duration.
func (c *Config) PerRequestBudget() time.Duration {
	return time.Duration(c.Limits.PerRequestBudgetMS) * time.Millisecond
}
