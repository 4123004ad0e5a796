package contract

import (
	"fmt"
	"time"
)

// VerifiedFact is a numeric finding certified by the truth boundary gate to
// originate from sandboxed execution. Only the gate mints facts; once minted,
// the extracted values and script hash are frozen for the life of the fact.
//
// Confidence is the single mutable field. It is adjusted exactly once, by the
// debate engine's synthesis, and can only move downward from the gate's
// initial score.
type VerifiedFact struct {
	FactID            string
	QueryID           string
	PlanID            string
	SourceVerified    bool
	TemporalCompliant bool
	CreatedAt         time.Time

	extractedValues map[string]float64
	scriptHash      string
	confidence      float64
}

// NewVerifiedFact freezes the given values and hash into a fact. The value
// map is copied so the caller cannot retain a mutation path into the fact.
func NewVerifiedFact(factID, queryID, planID string, values map[string]float64, scriptHash string, confidence float64) *VerifiedFact {
	frozen := make(map[string]float64, len(values))
	for k, v := range values {
		frozen[k] = v
	}
	return &VerifiedFact{
		FactID:            factID,
		QueryID:           queryID,
		PlanID:            planID,
		SourceVerified:    true,
		TemporalCompliant: true,
		CreatedAt:         time.Now().UTC(),
		extractedValues:   frozen,
		scriptHash:        scriptHash,
		confidence:        clamp01(confidence),
	}
}

// ExtractedValues returns a copy of the frozen value map.
func (f *VerifiedFact) ExtractedValues() map[string]float64 {
	out := make(map[string]float64, len(f.extractedValues))
	for k, v := range f.extractedValues {
		out[k] = v
	}
	return out
}

// Value returns a single extracted value by name.
func (f *VerifiedFact) Value(name string) (float64, bool) {
	v, ok := f.extractedValues[name]
	return v, ok
}

// ScriptHash returns the hash of the script that produced the fact's values.
func (f *VerifiedFact) ScriptHash() string { return f.scriptHash }

// Confidence returns the current confidence score in [0,1].
func (f *VerifiedFact) Confidence() float64 { return f.confidence }

// ReduceConfidence lowers the fact's confidence to c. Raising confidence is
// refused: debate may only make the pipeline less certain, never more.
func (f *VerifiedFact) ReduceConfidence(c float64) error {
	c = clamp01(c)
	if c > f.confidence {
		return fmt.Errorf("fact %s: confidence may not increase (%.3f -> %.3f)", f.FactID, f.confidence, c)
	}
	f.confidence = c
	return nil
}

func (f *VerifiedFact) String() string {
	return fmt.Sprintf("VerifiedFact(%s plan=%s values=%d confidence=%.2f)", f.FactID, f.PlanID, len(f.extractedValues), f.confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
