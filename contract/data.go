package contract

import (
	"sort"
	"time"
)

// Point is a single observation for an entity: a date plus a set of named
// numeric fields (open, close, volume, ratio, ...).
type Point struct {
	Date   time.Time          `json:"date"`
	Fields map[string]float64 `json:"fields"`
}

// Series is the chronologically ordered observations for one entity.
type Series []Point

// Last returns the most recent point of the series and false when empty.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// DataContract is the external fetcher's output: per-entity series covering a
// declared date range, plus the cutoff beyond which the fetcher guarantees no
// datapoint exists. The cutoff is what the gate's temporal check is anchored
// against.
type DataContract struct {
	Entities  map[string]Series `json:"entities"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	Cutoff    time.Time         `json:"cutoff"`
}

// EntityNames returns the contract's entity keys in sorted order so callers
// iterate deterministically.
func (d DataContract) EntityNames() []string {
	names := make([]string, 0, len(d.Entities))
	for name := range d.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Violation returns the first datapoint found beyond the cutoff, if any.
// A non-zero result means the fetcher broke its own guarantee and the
// contract must not be handed to the executor.
func (d DataContract) Violation() (string, Point, bool) {
	for _, name := range d.EntityNames() {
		for _, pt := range d.Entities[name] {
			if pt.Date.After(d.Cutoff) {
				return name, pt, true
			}
		}
	}
	return "", Point{}, false
}
