// Package gate implements the truth boundary: the single place where a
// numeric finding can become a VerifiedFact. The gate admits a value only
// when it can certify the value was produced by a sandboxed execution, the
// plan and script stay inside the query's temporal cutoff, and the magnitude
// is plausible. Everything else is rejected, and rejections are terminal:
// they are never retried, because retrying a rejection would reintroduce the
// hallucination risk the gate exists to prevent.
package gate

import (
	"fmt"
	"math"
	"time"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/internal/util"
	"github.com/sergeeey/verifind/logging"
)

// RejectReason classifies why the gate refused to mint a fact.
type RejectReason string

const (
	// ReasonNotSourceVerified means no numeric value was produced by the
	// sandboxed script itself.
	ReasonNotSourceVerified RejectReason = "not-source-verified"
	// ReasonTemporalViolation means the plan or script reaches beyond the
	// query's data cutoff.
	ReasonTemporalViolation RejectReason = "temporal-violation"
	// ReasonImplausibleValue means a produced value falls outside the
	// configured plausibility bounds and is treated as a computation error.
	ReasonImplausibleValue RejectReason = "implausible-value"
)

// Rejection is the gate's terminal refusal. It satisfies error so callers can
// propagate it directly, and carries the reason for stable classification.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("gate rejection (%s): %s", r.Reason, r.Detail)
}

// Weights is the fixed-weight confidence composite. The four components must
// sum to 1; Validate enforces it.
type Weights struct {
	TemporalFreshness float64 `yaml:"temporal_freshness"`
	SourceReliability float64 `yaml:"source_reliability"`
	ScriptSafety      float64 `yaml:"script_safety"`
	CrossCheckMatch   float64 `yaml:"cross_check_match"`
}

// DefaultWeights returns the tuned composite weights. The exact numbers are
// configuration, not derivation; override them via Config.
func DefaultWeights() Weights {
	return Weights{TemporalFreshness: 0.3, SourceReliability: 0.3, ScriptSafety: 0.2, CrossCheckMatch: 0.2}
}

// Validate reports whether the weights form a convex combination.
func (w Weights) Validate() error {
	sum := w.TemporalFreshness + w.SourceReliability + w.ScriptSafety + w.CrossCheckMatch
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("gate weights must sum to 1, got %.6f", sum)
	}
	for _, v := range []float64{w.TemporalFreshness, w.SourceReliability, w.ScriptSafety, w.CrossCheckMatch} {
		if v < 0 {
			return fmt.Errorf("gate weights must be non-negative")
		}
	}
	return nil
}

// Bounds configures the plausibility check. MaxAbsValue applies to every
// value; RatioBound applies to values whose name looks like a ratio or
// percentage, where astronomical magnitudes signal a broken computation.
type Bounds struct {
	MaxAbsValue float64 `yaml:"max_abs_value"`
	RatioBound  float64 `yaml:"ratio_bound"`
}

// DefaultBounds returns the default plausibility envelope.
func DefaultBounds() Bounds {
	return Bounds{MaxAbsValue: 1e9, RatioBound: 1e4}
}

// Config tunes the gate. Zero-value fields fall back to defaults.
type Config struct {
	Weights Weights `yaml:"weights"`
	Bounds  Bounds  `yaml:"bounds"`
	// SourceTiers maps a source tier label (from the query context attribute
	// "source_tier") to a reliability score in [0,1].
	SourceTiers map[string]float64 `yaml:"source_tiers"`
	// CrossCheck optionally supplies reference values keyed by output name;
	// produced values are scored by their relative distance to the reference.
	CrossCheck map[string]float64 `yaml:"-"`
	// FreshnessHorizon is the age at which temporal freshness decays to zero.
	FreshnessHorizon time.Duration `yaml:"freshness_horizon"`
}

// TruthBoundary is the gate itself. Construct with New; the zero value is not
// usable.
type TruthBoundary struct {
	cfg    Config
	logger logging.Logger
}

// New constructs a gate, applying defaults for any unset config field.
func New(cfg Config, logger logging.Logger) (*TruthBoundary, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bounds == (Bounds{}) {
		cfg.Bounds = DefaultBounds()
	}
	if cfg.SourceTiers == nil {
		cfg.SourceTiers = map[string]float64{"primary": 0.95, "secondary": 0.8, "unverified": 0.5}
	}
	if cfg.FreshnessHorizon <= 0 {
		cfg.FreshnessHorizon = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &TruthBoundary{cfg: cfg, logger: logger}, nil
}

// Evaluate certifies an execution result against its plan and query context.
// It returns the minted VerifiedFact or a *Rejection. The temporal check runs
// first so a future-reaching plan is refused before any confidence work.
func (g *TruthBoundary) Evaluate(result contract.ExecutionResult, plan contract.PlanContract, qctx contract.QueryContext) (*contract.VerifiedFact, error) {
	cutoff := qctx.EffectiveCutoff()

	if detail, ok := temporalViolation(plan, cutoff); ok {
		g.reject(plan.ID, ReasonTemporalViolation, detail)
		return nil, &Rejection{Reason: ReasonTemporalViolation, Detail: detail}
	}

	if !result.Succeeded {
		detail := "execution did not succeed"
		if result.Error != "" {
			detail = result.Error
		}
		g.reject(plan.ID, ReasonNotSourceVerified, detail)
		return nil, &Rejection{Reason: ReasonNotSourceVerified, Detail: detail}
	}

	values := result.Values()
	if len(values) == 0 {
		detail := "script published no numeric values"
		g.reject(plan.ID, ReasonNotSourceVerified, detail)
		return nil, &Rejection{Reason: ReasonNotSourceVerified, Detail: detail}
	}

	if name, v, ok := g.implausible(values); ok {
		detail := fmt.Sprintf("value %q = %g outside plausibility bounds", name, v)
		g.reject(plan.ID, ReasonImplausibleValue, detail)
		return nil, &Rejection{Reason: ReasonImplausibleValue, Detail: detail}
	}

	confidence := g.confidence(plan, qctx, values)
	fact := contract.NewVerifiedFact(util.NewID(), qctx.QueryID, plan.ID, values, result.ScriptHash, confidence)
	if dl, ok := g.logger.(decisionLogger); ok {
		dl.LogGateDecision(plan.ID, true, "", confidence)
	} else {
		g.logger.Info("fact admitted", "fact_id", fact.FactID, "plan_id", plan.ID, "confidence", confidence)
	}
	return fact, nil
}

// decisionLogger is the richer verdict record a logging.PipelineLogger offers
// beyond the minimal Logger interface.
type decisionLogger interface {
	LogGateDecision(planID string, admitted bool, reason string, confidence float64)
}

func (g *TruthBoundary) reject(planID string, reason RejectReason, detail string) {
	if dl, ok := g.logger.(decisionLogger); ok {
		dl.LogGateDecision(planID, false, fmt.Sprintf("%s: %s", reason, detail), 0)
		return
	}
	g.logger.Warn("fact rejected", "plan_id", planID, "reason", string(reason), "detail", detail)
}

// implausible returns the first value outside the configured envelope. NaN
// and infinities always fail closed.
func (g *TruthBoundary) implausible(values map[string]float64) (string, float64, bool) {
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return name, v, true
		}
		if math.Abs(v) > g.cfg.Bounds.MaxAbsValue {
			return name, v, true
		}
		if looksLikeRatio(name) && math.Abs(v) > g.cfg.Bounds.RatioBound {
			return name, v, true
		}
	}
	return "", 0, false
}

// confidence computes the fixed-weight composite. Each component is bounded
// to [0,1] before weighting so a single wild score cannot push the composite
// out of range.
func (g *TruthBoundary) confidence(plan contract.PlanContract, qctx contract.QueryContext, values map[string]float64) float64 {
	w := g.cfg.Weights
	score := w.TemporalFreshness*g.freshnessScore(plan, qctx) +
		w.SourceReliability*g.sourceScore(qctx) +
		w.ScriptSafety*scriptSafetyScore(plan.ScriptText) +
		w.CrossCheckMatch*g.crossCheckScore(values)
	return util.Clamp01(score)
}

// freshnessScore decays linearly with the age of the plan's data window
// relative to the query cutoff.
func (g *TruthBoundary) freshnessScore(plan contract.PlanContract, qctx contract.QueryContext) float64 {
	end := plan.Requirements.EndDate
	if end.IsZero() {
		return 0.5
	}
	age := qctx.EffectiveCutoff().Sub(end)
	if age <= 0 {
		return 1
	}
	return util.Clamp01(1 - float64(age)/float64(g.cfg.FreshnessHorizon))
}

func (g *TruthBoundary) sourceScore(qctx contract.QueryContext) float64 {
	tier := qctx.Attributes["source_tier"]
	if score, ok := g.cfg.SourceTiers[tier]; ok {
		return score
	}
	// Unknown tier: middle of the road rather than free credibility.
	return 0.6
}

// crossCheckScore compares produced values to any configured references.
// With no reference configured the component is neutral (1.0): absence of a
// cross-check is not evidence against the value.
func (g *TruthBoundary) crossCheckScore(values map[string]float64) float64 {
	if len(g.cfg.CrossCheck) == 0 {
		return 1
	}
	matched := 0
	total := 0.0
	for name, ref := range g.cfg.CrossCheck {
		v, ok := values[name]
		if !ok {
			continue
		}
		matched++
		denom := math.Max(math.Abs(ref), 1e-9)
		rel := math.Abs(v-ref) / denom
		total += util.Clamp01(1 - rel)
	}
	if matched == 0 {
		return 1
	}
	return total / float64(matched)
}
