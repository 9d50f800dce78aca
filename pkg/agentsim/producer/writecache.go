package producer

import (
	"fmt"
	"sync/atomic"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// durableSink is the subset of *persist.Store a WriteCache needs. Declared
// as an interface so the producer package does not import persist (which
// would create a dependency the other direction is unlikely to need) and so
// tests can inject a fake.
type durableSink interface {
	Append(key, value string) error
}

// WriteCache is a last-write-wins producer: Set operations replace the
// stored value; reads return a lock-free consistent snapshot via
// atomic.Value, so concurrent Gets never block behind a Set.
type WriteCache struct {
	asnType gosnmp.Asn1BER
	oidKey  string
	current atomic.Value // holds any, the current value

	sink durableSink // optional; nil means not persisted
}

// NewWriteCache creates a WriteCache seeded with initial. oidKey identifies
// this record in the optional durability sink.
func NewWriteCache(asnType gosnmp.Asn1BER, oidKey string, initial any, sink durableSink) *WriteCache {
	wc := &WriteCache{asnType: asnType, oidKey: oidKey, sink: sink}
	wc.current.Store(initial)
	return wc
}

// Read implements Producer.
func (w *WriteCache) Read(_ *models.RequestContext, _ models.Record) (gosnmp.Asn1BER, any, error) {
	return w.asnType, w.current.Load(), nil
}

// Validate implements Writer. It checks newValue's type against asnType
// without touching the stored value or the durability sink, so the
// Protocol Engine can reject a whole Set before committing any varbind.
func (w *WriteCache) Validate(_ *models.RequestContext, _ models.Record, newValue any) error {
	if err := typeMatches(w.asnType, newValue); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	}
	return nil
}

// Write implements Writer. It stores the new value and, if a durability
// sink is configured, appends it before returning success — a failed
// durability append is surfaced to the caller as resourceUnavailable so the
// two-phase Set can roll back cleanly.
func (w *WriteCache) Write(_ *models.RequestContext, _ models.Record, newValue any) error {
	if err := typeMatches(w.asnType, newValue); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	}
	if w.sink != nil {
		if err := w.sink.Append(w.oidKey, fmt.Sprintf("%v", newValue)); err != nil {
			return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
	}
	w.current.Store(newValue)
	return nil
}

func typeMatches(asnType gosnmp.Asn1BER, value any) error {
	switch asnType {
	case gosnmp.OctetString, gosnmp.IPAddress:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case gosnmp.Integer:
		if _, ok := value.(int); !ok {
			return fmt.Errorf("expected int, got %T", value)
		}
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		if _, ok := value.(uint32); !ok {
			return fmt.Errorf("expected uint32, got %T", value)
		}
	case gosnmp.Counter64:
		if _, ok := value.(uint64); !ok {
			return fmt.Errorf("expected uint64, got %T", value)
		}
	}
	return nil
}
