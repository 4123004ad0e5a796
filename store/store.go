// Package store persists the pipeline's certified outputs: verified facts,
// debate reports and syntheses, keyed by query. The canonical sink interface
// lives here; implementation backends (in-memory, object stores, databases)
// can be swapped without touching the pipeline.
//
// Writes are best effort from the pipeline's point of view: a failing sink is
// logged and never fails the query that produced the fact.
package store

import (
	"errors"
	"time"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
)

// ErrNotFound is returned when no record exists for the given query id.
var ErrNotFound = errors.New("store: record not found")

// FactEntry pairs a verified fact with the node of the query's task graph
// that produced it. NodeID is empty for single-task queries.
type FactEntry struct {
	NodeID string
	Fact   *contract.VerifiedFact
}

// QueryRecord is everything persisted for one query.
type QueryRecord struct {
	QueryID   string
	Facts     []FactEntry
	Reports   []debate.DebateReport
	Synthesis *debate.Synthesis
	UpdatedAt time.Time
}

// PersistenceSink receives the pipeline's certified outputs.
type PersistenceSink interface {
	SaveFact(queryID, nodeID string, fact *contract.VerifiedFact) error
	SaveReports(queryID string, reports []debate.DebateReport) error
	SaveSynthesis(queryID string, syn debate.Synthesis) error

	// Get returns the accumulated record for a query or ErrNotFound.
	Get(queryID string) (QueryRecord, error)
}
