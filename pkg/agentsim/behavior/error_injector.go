package behavior

import (
	"math/rand"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

var errorNameToStatus = map[string]gosnmp.SNMPError{
	"noError":             gosnmp.NoError,
	"tooBig":               gosnmp.TooBig,
	"noSuchName":          gosnmp.NoSuchName,
	"badValue":            gosnmp.BadValue,
	"genErr":              gosnmp.GenErr,
	"noAccess":            gosnmp.NoAccess,
	"wrongType":           gosnmp.WrongType,
	"wrongLength":         gosnmp.WrongLength,
	"wrongEncoding":       gosnmp.WrongEncoding,
	"wrongValue":          gosnmp.WrongValue,
	"noCreation":          gosnmp.NoCreation,
	"inconsistentValue":   gosnmp.InconsistentValue,
	"resourceUnavailable": gosnmp.ResourceUnavailable,
	"commitFailed":        gosnmp.CommitFailed,
	"undoFailed":          gosnmp.UndoFailed,
	"authorizationError":  gosnmp.AuthorizationError,
	"notWritable":         gosnmp.NotWritable,
	"inconsistentName":    gosnmp.InconsistentName,
}

// ErrorInjector sets ctx.Derived.ErrorOverride either probabilistically or
// for specific configured OIDs, modeling a device returning a fixed
// errorStatus on certain variables.
type ErrorInjector struct {
	ratePct float64
	kinds   []gosnmp.SNMPError
	perOID  map[string]gosnmp.SNMPError
	rng     *rand.Rand
}

// NewErrorInjector builds an ErrorInjector. Unknown kind/status names are
// skipped rather than rejected, so a config can list speculative names for
// future error kinds.
func NewErrorInjector(ratePct float64, kindNames []string, perOIDNames map[string]string, rng *rand.Rand) *ErrorInjector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	kinds := make([]gosnmp.SNMPError, 0, len(kindNames))
	for _, name := range kindNames {
		if status, ok := errorNameToStatus[name]; ok {
			kinds = append(kinds, status)
		}
	}
	if len(kinds) == 0 {
		kinds = []gosnmp.SNMPError{gosnmp.GenErr}
	}
	perOID := make(map[string]gosnmp.SNMPError, len(perOIDNames))
	for oid, name := range perOIDNames {
		if status, ok := errorNameToStatus[name]; ok {
			perOID[strings.TrimPrefix(oid, ".")] = status
		}
	}
	return &ErrorInjector{ratePct: ratePct, kinds: kinds, perOID: perOID, rng: rng}
}

// BeforeLookup implements Interceptor.
func (e *ErrorInjector) BeforeLookup(ctx *models.RequestContext) {
	if ctx.Derived.ErrorOverride != nil {
		return
	}
	for i, vb := range ctx.Varbinds {
		oid := strings.TrimPrefix(vb.Name, ".")
		if status, ok := e.perOID[oid]; ok {
			ctx.Derived.ErrorOverride = &status
			ctx.Derived.ErrorIndex = i + 1
			return
		}
	}
	if e.ratePct > 0 && e.rng.Float64() < e.ratePct {
		status := e.kinds[e.rng.Intn(len(e.kinds))]
		ctx.Derived.ErrorOverride = &status
		if len(ctx.Varbinds) > 0 {
			ctx.Derived.ErrorIndex = 1
		}
	}
}

// AfterLookup implements Interceptor; nothing to do after lookup.
func (e *ErrorInjector) AfterLookup(*models.RequestContext, int) {}
