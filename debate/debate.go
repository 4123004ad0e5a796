// Package debate runs multi-perspective analysis over a verified fact and
// conservatively synthesizes the outcome. Perspectives never touch the
// fact's frozen values; the only thing debate may change is the fact's
// confidence, and only downward.
package debate

import (
	"context"
	"errors"

	"github.com/sergeeey/verifind/contract"
)

// Perspective identifies one of the independent debate viewpoints.
type Perspective string

const (
	// PerspectiveBull argues the optimistic reading of the fact.
	PerspectiveBull Perspective = "bull"
	// PerspectiveBear argues the pessimistic reading.
	PerspectiveBear Perspective = "bear"
	// PerspectiveNeutral weighs both sides without preference.
	PerspectiveNeutral Perspective = "neutral"
)

// Strength grades how firmly an argument is supported.
type Strength string

const (
	// StrengthStrong marks an argument with direct numeric support.
	StrengthStrong Strength = "strong"
	// StrengthModerate marks an argument with indirect support.
	StrengthModerate Strength = "moderate"
	// StrengthWeak marks an argument resting on general context.
	StrengthWeak Strength = "weak"
)

// Argument is one claim with its supporting evidence. An argument without
// evidence is a quality defect and drags its report's quality score down.
type Argument struct {
	Claim    string   `json:"claim"`
	Evidence []string `json:"evidence"`
	Strength Strength `json:"strength"`
}

// DebateReport is one perspective's full output: its arguments plus a
// quality score in [0,1] reflecting how well-evidenced the perspective is.
type DebateReport struct {
	Perspective  Perspective `json:"perspective"`
	Arguments    []Argument  `json:"arguments"`
	QualityScore float64     `json:"quality_score"`
}

// Valid reports whether the report can participate in synthesis: it needs at
// least one argument, and every argument must cite evidence.
func (r DebateReport) Valid() bool {
	if len(r.Arguments) == 0 {
		return false
	}
	for _, a := range r.Arguments {
		if a.Claim == "" || len(a.Evidence) == 0 {
			return false
		}
	}
	return true
}

// Synthesis is the conservative aggregate of the surviving perspectives.
// Confidence obeys the dampening rule: it never exceeds the weakest
// perspective, and inter-perspective disagreement reduces it further.
type Synthesis struct {
	Consensus           string   `json:"consensus"`
	DivergencePoints    []string `json:"divergence_points"`
	Risks               []string `json:"risks"`
	Opportunities       []string `json:"opportunities"`
	ConfidenceRationale string   `json:"confidence_rationale"`
	Confidence          float64  `json:"confidence"`
	// ReducedCoverage flags that at least one perspective was malformed and
	// synthesis proceeded on the remainder.
	ReducedCoverage bool `json:"reduced_coverage"`
}

// ErrAllPerspectivesMalformed is returned when no perspective produced a
// valid report. The debate step fails closed: the fact's confidence is left
// untouched.
var ErrAllPerspectivesMalformed = errors.New("debate: all perspectives malformed")

// Adapter is the substitution point between rule-based and model-driven
// debate. Any implementation satisfying this contract can back the
// orchestrator without changes.
type Adapter interface {
	// Debate analyses the fact from multiple perspectives and returns the
	// per-perspective reports plus their conservative synthesis. On success
	// the implementation lowers the fact's confidence to the synthesized
	// value; it never raises it and never alters the fact's frozen fields.
	Debate(ctx context.Context, fact *contract.VerifiedFact, qctx contract.QueryContext) ([]DebateReport, Synthesis, error)
}
