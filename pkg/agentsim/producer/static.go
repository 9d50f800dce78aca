package producer

import (
	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
)

// Static returns the Record's stored value unchanged, for wrapping (for
// example by Delay) where a Producer is needed. The record-file format has
// no tag that binds it: records with no ProducerRef skip the producer layer
// entirely and the Record Store returns rec.Type/rec.Value directly.
type Static struct{}

// Read implements Producer.
func (Static) Read(_ *models.RequestContext, rec models.Record) (gosnmp.Asn1BER, any, error) {
	return rec.Type, rec.Value, nil
}
