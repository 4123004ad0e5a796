package debate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergeeey/verifind/internal/util"
)

// SynthesisConfig tunes the conservative aggregation.
type SynthesisConfig struct {
	// SpreadDampening scales how hard inter-perspective disagreement pulls
	// the synthesized confidence down. With spread s in [0,1], the weakest
	// perspective's confidence is multiplied by (1 - SpreadDampening*s).
	SpreadDampening float64 `yaml:"spread_dampening"`
}

// DefaultSynthesisConfig returns the tuned dampening factor.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{SpreadDampening: 0.5}
}

// Synthesize folds the valid reports into a Synthesis. Malformed reports are
// dropped (setting ReducedCoverage); if none survive it returns
// ErrAllPerspectivesMalformed and the caller must leave the fact unchanged.
//
// The confidence rule is strictly conservative:
//
//	confidence = min(quality scores) * (1 - dampening * (max - min))
//
// so disagreement can only lower certainty, never raise it.
func Synthesize(reports []DebateReport, cfg SynthesisConfig) (Synthesis, error) {
	if cfg.SpreadDampening <= 0 {
		cfg = DefaultSynthesisConfig()
	}

	valid := make([]DebateReport, 0, len(reports))
	for _, r := range reports {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return Synthesis{}, ErrAllPerspectivesMalformed
	}

	minConf, maxConf := valid[0].QualityScore, valid[0].QualityScore
	for _, r := range valid[1:] {
		if r.QualityScore < minConf {
			minConf = r.QualityScore
		}
		if r.QualityScore > maxConf {
			maxConf = r.QualityScore
		}
	}
	spread := maxConf - minConf
	dampening := 1 - cfg.SpreadDampening*spread
	confidence := util.Clamp01(minConf * dampening)

	syn := Synthesis{
		Consensus:        consensusText(valid),
		DivergencePoints: divergencePoints(valid),
		Confidence:       confidence,
		ReducedCoverage:  len(valid) < len(reports),
		ConfidenceRationale: fmt.Sprintf(
			"weakest perspective at %.2f, spread %.2f dampened by factor %.2f",
			minConf, spread, dampening),
	}
	for _, r := range valid {
		switch r.Perspective {
		case PerspectiveBear:
			syn.Risks = append(syn.Risks, claims(r)...)
		case PerspectiveBull:
			syn.Opportunities = append(syn.Opportunities, claims(r)...)
		}
	}
	return syn, nil
}

func claims(r DebateReport) []string {
	out := make([]string, 0, len(r.Arguments))
	for _, a := range r.Arguments {
		out = append(out, a.Claim)
	}
	return out
}

// consensusText summarizes where the surviving perspectives land. With a
// tight spread the perspectives broadly agree; otherwise the consensus notes
// the contention.
func consensusText(valid []DebateReport) string {
	names := make([]string, 0, len(valid))
	for _, r := range valid {
		names = append(names, string(r.Perspective))
	}
	sort.Strings(names)
	return fmt.Sprintf("synthesis over %d perspectives (%s)", len(valid), strings.Join(names, ", "))
}

// divergencePoints surfaces claims made by exactly one perspective: these are
// the places the viewpoints genuinely disagree on emphasis.
func divergencePoints(valid []DebateReport) []string {
	if len(valid) < 2 {
		return nil
	}
	seen := map[string]int{}
	for _, r := range valid {
		for _, a := range r.Arguments {
			seen[a.Claim]++
		}
	}
	var out []string
	for _, r := range valid {
		for _, a := range r.Arguments {
			if seen[a.Claim] == 1 && a.Strength != StrengthWeak {
				out = append(out, fmt.Sprintf("%s: %s", r.Perspective, a.Claim))
			}
		}
	}
	sort.Strings(out)
	return out
}
