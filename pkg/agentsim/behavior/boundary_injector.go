package behavior

import (
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// BoundaryInjector overrides the lookup result for configured OIDs or
// subtrees before the request ever reaches the Record Store: a MIB view
// end or a declared-missing object. Sparse table holes are not injected
// here; the configured sparse-table map is not read by this interceptor.
type BoundaryInjector struct {
	// viewEnds maps a subtree prefix to the OID (dotted) at which the view
	// ends; any varbind at or beyond it within that subtree becomes
	// EndOfMibView.
	viewEnds map[string]string

	// missing is the set of OIDs (dotted) that always report NoSuchObject.
	missing map[string]struct{}
}

// NewBoundaryInjector builds a BoundaryInjector from configured view ends
// and missing-object OIDs.
func NewBoundaryInjector(viewEnds map[string]string, missingObjects []string) *BoundaryInjector {
	m := make(map[string]struct{}, len(missingObjects))
	for _, o := range missingObjects {
		m[strings.TrimPrefix(o, ".")] = struct{}{}
	}
	return &BoundaryInjector{viewEnds: viewEnds, missing: m}
}

// BeforeLookup implements Interceptor. Overrides are recorded per varbind
// index in ctx.Derived.BoundaryOverrides for the Protocol Engine to apply
// instead of consulting the Record Store for that varbind.
func (b *BoundaryInjector) BeforeLookup(ctx *models.RequestContext) {
	for i, vb := range ctx.Varbinds {
		oid := strings.TrimPrefix(vb.Name, ".")
		if _, ok := b.missing[oid]; ok {
			ctx.Derived.BoundaryOverrides[i] = gosnmp.NoSuchObject
			continue
		}
		parsed, err := models.ParseOID(oid)
		if err != nil {
			continue
		}
		for prefix, end := range b.viewEnds {
			prefixOID, err := models.ParseOID(prefix)
			if err != nil || !parsed.HasPrefix(prefixOID) {
				continue
			}
			endOID, err := models.ParseOID(end)
			if err != nil {
				continue
			}
			if !parsed.Less(endOID) {
				ctx.Derived.BoundaryOverrides[i] = gosnmp.EndOfMibView
				break
			}
		}
	}
}

// AfterLookup implements Interceptor; nothing to do after lookup.
func (b *BoundaryInjector) AfterLookup(*models.RequestContext, int) {}
