// Package store implements the Record Store: an OID-ordered, read-mostly
// table of Records backed by a sorted slice and swapped wholesale on Load,
// the same copy-on-write discipline the configuration loader uses for
// atomic config replacement.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/producer"
)

// SetResult is the outcome of a Set attempt.
type SetResult int

const (
	SetOK SetResult = iota
	SetWrongType
	SetNotWritable
	SetNoAccess
	SetResourceUnavailable
)

// Store is an OID-ordered table of Records for a single context. All reads
// take an RLock and walk an immutable sorted slice; Load installs a brand
// new slice under a write lock so in-flight readers see either the fully
// old or fully new snapshot, never a mix.
type Store struct {
	mu         sync.RWMutex
	records    []models.Record // sorted by OID
	producers  *producer.Registry
	setLocks   map[string]*sync.Mutex // per-OID serialization for Set
	setLocksMu sync.Mutex
}

// New creates an empty Store bound to the given producer registry. A nil
// registry is valid for stores whose records are all static.
func New(registry *producer.Registry) *Store {
	if registry == nil {
		registry = producer.NewRegistry()
	}
	return &Store{
		producers: registry,
		setLocks:  make(map[string]*sync.Mutex),
	}
}

// Load atomically replaces the store's contents. records need not be
// pre-sorted; Load sorts its own copy before publishing it.
func (s *Store) Load(records []models.Record) {
	sorted := make([]models.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OID.Less(sorted[j].OID) })

	s.mu.Lock()
	s.records = sorted
	s.mu.Unlock()
}

// snapshot returns the current record slice. Callers must not mutate it.
func (s *Store) snapshot() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *Store) search(recs []models.Record, oid models.OID) int {
	return sort.Search(len(recs), func(i int) bool { return !recs[i].OID.Less(oid) })
}

// Get performs an exact-match lookup, resolving any attached producer.
// It returns (gosnmp.NoSuchObject, nil, nil) when oid is not under any
// known subtree and (gosnmp.NoSuchInstance, nil, nil) when it falls within
// a known subtree's span but has no exact entry.
func (s *Store) Get(ctx *models.RequestContext, oid models.OID) (gosnmp.Asn1BER, any, error) {
	recs := s.snapshot()
	i := s.search(recs, oid)
	if i < len(recs) && recs[i].OID.Equal(oid) {
		return s.readRecord(ctx, recs[i])
	}
	if s.withinKnownSubtree(recs, oid) {
		return gosnmp.NoSuchInstance, nil, nil
	}
	return gosnmp.NoSuchObject, nil, nil
}

// withinKnownSubtree reports whether oid shares an immediate-parent subtree
// with any stored record, used to distinguish NoSuchObject from
// NoSuchInstance for sparse tables. Because recs is sorted lexicographically,
// every record sharing parent as a prefix forms one contiguous run starting
// at the first record not less than parent.
func (s *Store) withinKnownSubtree(recs []models.Record, oid models.OID) bool {
	if len(oid) == 0 {
		return false
	}
	parent := oid[:len(oid)-1]
	i := s.search(recs, parent)
	return i < len(recs) && recs[i].OID.HasPrefix(parent)
}

// Next returns the smallest record strictly greater than oid, or
// (gosnmp.EndOfMibView, nil, nil) when none remains.
func (s *Store) Next(ctx *models.RequestContext, oid models.OID) (models.Record, gosnmp.Asn1BER, any, error) {
	recs := s.snapshot()
	i := sort.Search(len(recs), func(i int) bool { return oid.Less(recs[i].OID) })
	if i >= len(recs) {
		return models.Record{}, gosnmp.EndOfMibView, nil, nil
	}
	typ, val, err := s.readRecord(ctx, recs[i])
	return recs[i], typ, val, err
}

// Bulk walks forward up to maxRepetitions times per varbind starting oid,
// per the GetBulk shape (non-repeaters are handled by the caller issuing a
// single Next per such varbind). It stops early at EndOfMibView.
func (s *Store) Bulk(ctx *models.RequestContext, startOID models.OID, maxRepetitions int) []models.Record {
	recs := s.snapshot()
	i := sort.Search(len(recs), func(i int) bool { return startOID.Less(recs[i].OID) })
	out := make([]models.Record, 0, maxRepetitions)
	for n := 0; n < maxRepetitions && i < len(recs); n, i = n+1, i+1 {
		out = append(out, recs[i])
	}
	return out
}

// Validate reports whether Set would succeed for oid with newValue, without
// applying any mutation. The Protocol Engine's Set calls this for every
// varbind in a PDU before committing any of them, so access, type,
// writability, and value-domain failures are caught atomically up front —
// only a resource failure during the actual commit needs Set's undo path.
func (s *Store) Validate(ctx *models.RequestContext, oid models.OID, newValue any) SetResult {
	recs := s.snapshot()
	i := s.search(recs, oid)
	if i >= len(recs) || !recs[i].OID.Equal(oid) {
		return SetNotWritable
	}
	rec := recs[i]
	if !rec.Writable {
		return SetNotWritable
	}
	w, ok := s.producers.Get(rec.ProducerRef)
	if !ok {
		return SetNotWritable
	}
	writer, ok := w.(producer.Writer)
	if !ok {
		return SetNotWritable
	}
	return classifyWriteErr(writer.Validate(ctx, rec, newValue))
}

// Set attempts to write newValue to oid. It serializes concurrent writers
// to the same OID with a per-OID lock while leaving reads lock-free.
func (s *Store) Set(ctx *models.RequestContext, oid models.OID, newValue any) SetResult {
	lock := s.lockFor(oid.String())
	lock.Lock()
	defer lock.Unlock()

	recs := s.snapshot()
	i := s.search(recs, oid)
	if i >= len(recs) || !recs[i].OID.Equal(oid) {
		return SetNotWritable
	}
	rec := recs[i]
	if !rec.Writable {
		return SetNotWritable
	}
	w, ok := s.producers.Get(rec.ProducerRef)
	if !ok {
		return SetNotWritable
	}
	writer, ok := w.(producer.Writer)
	if !ok {
		return SetNotWritable
	}
	return classifyWriteErr(writer.Write(ctx, rec, newValue))
}

// classifyWriteErr maps a Writer error to the SetResult the Protocol Engine
// understands. Errors are matched with errors.Is since Write/Validate
// implementations wrap the sentinels with additional context.
func classifyWriteErr(err error) SetResult {
	if err == nil {
		return SetOK
	}
	switch {
	case errors.Is(err, producer.ErrWrongType):
		return SetWrongType
	case errors.Is(err, producer.ErrNotWritable):
		return SetNotWritable
	case errors.Is(err, producer.ErrResourceUnavailable):
		return SetResourceUnavailable
	default:
		return SetResourceUnavailable
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.setLocksMu.Lock()
	defer s.setLocksMu.Unlock()
	l, ok := s.setLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.setLocks[key] = l
	}
	return l
}

func (s *Store) readRecord(ctx *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error) {
	if rec.ProducerRef == "" {
		return rec.Type, rec.Value, nil
	}
	p, ok := s.producers.Get(rec.ProducerRef)
	if !ok {
		return gosnmp.Asn1BER(0), nil, fmt.Errorf("store: unresolved producer ref %q for %s", rec.ProducerRef, rec.OID)
	}
	return p.Read(ctx, rec)
}

// Len reports the number of records currently loaded, for diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
