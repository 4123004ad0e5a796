package fetch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sergeeey/verifind/contract"
)

// ErrUnknownEntity is returned when a requested entity has no series in the
// fetcher's store.
var ErrUnknownEntity = errors.New("fetch: unknown entity")

// MemoryFetcher serves series from an in-memory store. It is the hermetic
// fetcher used by tests and examples, and the reference for the cutoff
// contract every real fetcher must honor: points dated after the query's
// effective cutoff are clipped, never returned.
type MemoryFetcher struct {
	mu     sync.RWMutex
	series map[string]contract.Series
}

// NewMemoryFetcher constructs an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{series: make(map[string]contract.Series)}
}

// Load replaces the stored series for an entity. Points are copied and sorted
// chronologically so callers cannot mutate the store afterwards.
func (f *MemoryFetcher) Load(entity string, series contract.Series) {
	cp := make(contract.Series, len(series))
	copy(cp, series)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })

	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[entity] = cp
}

// Fetch implements DataFetcher.
func (f *MemoryFetcher) Fetch(ctx context.Context, req contract.DataRequirements, qctx contract.QueryContext) (contract.DataContract, error) {
	select {
	case <-ctx.Done():
		return contract.DataContract{}, &FetchError{QueryID: qctx.QueryID, Err: ctx.Err()}
	default:
	}

	cutoff := qctx.EffectiveCutoff()
	end := req.EndDate
	if end.After(cutoff) {
		end = cutoff
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	out := contract.DataContract{
		Entities:  make(map[string]contract.Series, len(req.Entities)),
		StartDate: req.StartDate,
		EndDate:   end,
		Cutoff:    cutoff,
	}
	for _, entity := range req.Entities {
		stored, ok := f.series[entity]
		if !ok {
			return contract.DataContract{}, &FetchError{QueryID: qctx.QueryID, Entity: entity, Err: ErrUnknownEntity}
		}
		out.Entities[entity] = clip(stored, req.StartDate, end)
	}
	return out, nil
}

// clip returns the points inside [start, end], copying field maps so the
// caller can hand the contract to a script without aliasing the store.
func clip(s contract.Series, start, end time.Time) contract.Series {
	var out contract.Series
	for _, pt := range s {
		if pt.Date.Before(start) || pt.Date.After(end) {
			continue
		}
		fields := make(map[string]float64, len(pt.Fields))
		for k, v := range pt.Fields {
			fields[k] = v
		}
		out = append(out, contract.Point{Date: pt.Date, Fields: fields})
	}
	return out
}
