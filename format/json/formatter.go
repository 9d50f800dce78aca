// Package json implements the JSON serialisation the external REST/WebSocket
// façade uses to marshal Control Surface results: configuration snapshots,
// enumerated/queried OIDs, and events drained from the event bus. It never
// touches the Record Store or Context Resolver directly — every value it
// serialises has already been produced by pkg/agentsim/control.
//
// This is the same formatter role the adapted pipeline's JSON stage played
// (a single json.Marshal call with optional indentation), generalised from
// one fixed metric schema to the handful of payload shapes the Control
// Surface exposes.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/control"
	"github.com/mocksnmp/agentsim/pkg/agentsim/events"
	"github.com/mocksnmp/agentsim/pkg/agentsim/wire"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Use false (default) in production to minimise byte count on the wire.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire-facing shapes
//
// These mirror the in-process Control Surface types field-for-field but add
// JSON tags and render values the façade can consume without importing
// gosnmp itself (OIDs as dotted strings, ASN.1 types as their numeric tag).
// ─────────────────────────────────────────────────────────────────────────────

// OIDEntry is one enumerated record, as returned by ListOIDs.
type OIDEntry struct {
	OID  string `json:"oid"`
	Type int    `json:"type"`
}

// VarBind is one resolved OID/value pair, as returned by QueryOIDs.
type VarBind struct {
	OID   string `json:"oid"`
	Type  int    `json:"type"`
	Value any    `json:"value"`
}

// ListOIDsResult is the façade-facing shape of a ListOIDs call.
type ListOIDsResult struct {
	OIDs       []OIDEntry `json:"oids"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// Event is the façade-facing shape of an events.Event.
type Event struct {
	Topic  string            `json:"topic"`
	Kind   string            `json:"kind"`
	Time   string            `json:"time"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func toOIDEntries(src []control.OIDEntry) []OIDEntry {
	out := make([]OIDEntry, len(src))
	for i, e := range src {
		out[i] = OIDEntry{OID: e.OID.String(), Type: int(e.Type)}
	}
	return out
}

func toVarBinds(src []wire.DecodedVarBind) []VarBind {
	out := make([]VarBind, len(src))
	for i, vb := range src {
		out[i] = VarBind{OID: vb.OID.String(), Type: int(vb.Type), Value: vb.Value}
	}
	return out
}

func toEvent(ev events.Event) Event {
	return Event{
		Topic:  ev.Topic,
		Kind:   ev.Kind,
		Time:   ev.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		Detail: ev.Detail,
		Fields: ev.Fields,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter serialises Control Surface results for the external façade
// using encoding/json. It is safe for concurrent use by multiple goroutines;
// all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted so the formatter never panics on a nil receiver.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

func (f *JSONFormatter) marshal(v any) ([]byte, error) {
	if f.cfg.PrettyPrint {
		return json.MarshalIndent(v, "", f.cfg.Indent)
	}
	return json.Marshal(v)
}

// FormatConfig serialises a configuration snapshot, as returned by
// Surface.SnapshotConfig.
func (f *JSONFormatter) FormatConfig(cfg *models.Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("format/json: config must not be nil")
	}
	data, err := f.marshal(cfg)
	if err != nil {
		f.logger.Error("format/json: marshal config failed", "error", err.Error())
		return nil, fmt.Errorf("format/json: marshal config: %w", err)
	}
	f.logger.Debug("format/json: formatted config snapshot", "bytes", len(data))
	return data, nil
}

// FormatListOIDs serialises a ListOIDs result.
func (f *JSONFormatter) FormatListOIDs(oids []control.OIDEntry, nextCursor models.OID, hasMore bool) ([]byte, error) {
	result := ListOIDsResult{
		OIDs:    toOIDEntries(oids),
		HasMore: hasMore,
	}
	if len(nextCursor) > 0 {
		result.NextCursor = nextCursor.String()
	}
	data, err := f.marshal(result)
	if err != nil {
		f.logger.Error("format/json: marshal list_oids failed", "error", err.Error())
		return nil, fmt.Errorf("format/json: marshal list_oids: %w", err)
	}
	f.logger.Debug("format/json: formatted list_oids result", "count", len(oids), "bytes", len(data))
	return data, nil
}

// FormatVarBinds serialises a QueryOIDs result.
func (f *JSONFormatter) FormatVarBinds(vbs []wire.DecodedVarBind) ([]byte, error) {
	data, err := f.marshal(toVarBinds(vbs))
	if err != nil {
		f.logger.Error("format/json: marshal varbinds failed", "error", err.Error())
		return nil, fmt.Errorf("format/json: marshal varbinds: %w", err)
	}
	f.logger.Debug("format/json: formatted varbinds", "count", len(vbs), "bytes", len(data))
	return data, nil
}

// FormatEvent serialises a single event drained from a Subscribe stream.
func (f *JSONFormatter) FormatEvent(topic string, ev events.Event) ([]byte, error) {
	out := toEvent(ev)
	out.Topic = topic
	data, err := f.marshal(out)
	if err != nil {
		f.logger.Error("format/json: marshal event failed", "topic", topic, "error", err.Error())
		return nil, fmt.Errorf("format/json: marshal event: %w", err)
	}
	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
