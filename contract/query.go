package contract

import "time"

// QueryContext carries the query-scoped facts every stage needs: the query's
// identity and text, the reference date the analysis is anchored at, and the
// data cutoff no plan or script may reach beyond.
//
// ReferenceDate defaults to "now" at submission; Cutoff defaults to the
// reference date when the caller does not narrow it further.
type QueryContext struct {
	QueryID       string            `json:"query_id"`
	QueryText     string            `json:"query_text"`
	ReferenceDate time.Time         `json:"reference_date"`
	Cutoff        time.Time         `json:"cutoff"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// EffectiveCutoff returns the cutoff, falling back to the reference date when
// no explicit cutoff was set.
func (q QueryContext) EffectiveCutoff() time.Time {
	if q.Cutoff.IsZero() {
		return q.ReferenceDate
	}
	return q.Cutoff
}
