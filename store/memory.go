package store

import (
	"sync"
	"time"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/debate"
)

// MemoryStore is a trivial in-process PersistenceSink useful for tests,
// examples and single-process prototypes. Records live in a map guarded by an
// RWMutex and are copied on retrieval so callers cannot mutate internal state.
//
// It does not enforce retention limits or eviction. For anything that must
// survive a process restart, use a durable backend instead.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*QueryRecord
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory sink.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*QueryRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) record(queryID string) *QueryRecord {
	rec, ok := s.records[queryID]
	if !ok {
		rec = &QueryRecord{QueryID: queryID}
		s.records[queryID] = rec
	}
	rec.UpdatedAt = s.now()
	return rec
}

// SaveFact implements PersistenceSink.
func (s *MemoryStore) SaveFact(queryID, nodeID string, fact *contract.VerifiedFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(queryID)
	rec.Facts = append(rec.Facts, FactEntry{NodeID: nodeID, Fact: fact})
	return nil
}

// SaveReports implements PersistenceSink.
func (s *MemoryStore) SaveReports(queryID string, reports []debate.DebateReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(queryID)
	rec.Reports = append(rec.Reports, reports...)
	return nil
}

// SaveSynthesis implements PersistenceSink.
func (s *MemoryStore) SaveSynthesis(queryID string, syn debate.Synthesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(queryID)
	rec.Synthesis = &syn
	return nil
}

// Get implements PersistenceSink.
func (s *MemoryStore) Get(queryID string) (QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[queryID]
	if !ok {
		return QueryRecord{}, ErrNotFound
	}
	out := *rec
	out.Facts = append([]FactEntry(nil), rec.Facts...)
	out.Reports = append([]debate.DebateReport(nil), rec.Reports...)
	if rec.Synthesis != nil {
		syn := *rec.Synthesis
		out.Synthesis = &syn
	}
	return out, nil
}

// QueryIDs returns the ids of all stored records. The slice is a snapshot
// safe for caller mutation.
func (s *MemoryStore) QueryIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids
}
