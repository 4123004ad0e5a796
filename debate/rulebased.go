package debate

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/logging"
)

// EngineOptions configures the rule-based engine.
type EngineOptions struct {
	Synthesis SynthesisConfig
	Logger    logging.Logger
}

// Engine is the rule-based debate implementation. The three perspectives run
// concurrently and independently: each receives its own copy of the fact's
// values and writes only to its own report slot, so no locking is needed.
type Engine struct {
	cfg    SynthesisConfig
	logger logging.Logger
}

// NewEngine constructs a rule-based engine with optional overrides.
func NewEngine(optFns ...func(o *EngineOptions)) *Engine {
	opts := EngineOptions{Synthesis: DefaultSynthesisConfig(), Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{cfg: opts.Synthesis, logger: opts.Logger}
}

// Debate implements Adapter.
func (e *Engine) Debate(ctx context.Context, fact *contract.VerifiedFact, qctx contract.QueryContext) ([]DebateReport, Synthesis, error) {
	perspectives := []Perspective{PerspectiveBull, PerspectiveBear, PerspectiveNeutral}
	reports := make([]DebateReport, len(perspectives))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range perspectives {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			reports[i] = analyze(p, fact, qctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Synthesis{}, err
	}

	syn, err := Synthesize(reports, e.cfg)
	if err != nil {
		// Fail closed: confidence stays where the gate put it.
		e.logger.Warn("debate failed closed", "query_id", qctx.QueryID, "error", err)
		return reports, Synthesis{}, err
	}

	if syn.Confidence < fact.Confidence() {
		if err := fact.ReduceConfidence(syn.Confidence); err != nil {
			return reports, Synthesis{}, err
		}
	} else {
		// Synthesis may not raise confidence; record the effective value.
		syn.Confidence = fact.Confidence()
	}
	e.logger.Info("debate complete", "query_id", qctx.QueryID, "confidence", fact.Confidence(), "reduced_coverage", syn.ReducedCoverage)
	return reports, syn, nil
}

// analyze produces one perspective's report from the fact's frozen values and
// the query context. Argument generation is deterministic: values are visited
// in sorted name order.
func analyze(p Perspective, fact *contract.VerifiedFact, qctx contract.QueryContext) DebateReport {
	values := fact.ExtractedValues()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var args []Argument
	for _, name := range names {
		if len(args) == 4 {
			break
		}
		args = append(args, valueArgument(p, name, values[name], fact))
	}

	// Context-level argument keeps every perspective at three or more
	// arguments even for single-value facts.
	args = append(args, provenanceArgument(p, fact, qctx))
	if len(args) < 3 {
		args = append(args, confidenceArgument(p, fact))
	}

	return DebateReport{Perspective: p, Arguments: args, QualityScore: quality(args)}
}

func valueArgument(p Perspective, name string, v float64, fact *contract.VerifiedFact) Argument {
	evidence := []string{
		fmt.Sprintf("sandbox-verified value %s=%g", name, v),
		fmt.Sprintf("script hash %.12s", fact.ScriptHash()),
	}
	switch p {
	case PerspectiveBull:
		return Argument{
			Claim:    fmt.Sprintf("%s at %g supports the constructive case", name, v),
			Evidence: evidence,
			Strength: StrengthStrong,
		}
	case PerspectiveBear:
		return Argument{
			Claim:    fmt.Sprintf("%s at %g is a single datapoint and warrants caution", name, v),
			Evidence: evidence,
			Strength: StrengthModerate,
		}
	default:
		return Argument{
			Claim:    fmt.Sprintf("%s measured at %g; direction depends on baseline comparison", name, v),
			Evidence: evidence,
			Strength: StrengthModerate,
		}
	}
}

func provenanceArgument(p Perspective, fact *contract.VerifiedFact, qctx contract.QueryContext) Argument {
	evidence := []string{
		fmt.Sprintf("fact %s minted from sandboxed execution", fact.FactID),
		fmt.Sprintf("query %q anchored at %s", qctx.QueryText, qctx.ReferenceDate.Format("2006-01-02")),
	}
	switch p {
	case PerspectiveBear:
		return Argument{
			Claim:    "values reflect historical data only and may not persist",
			Evidence: evidence,
			Strength: StrengthWeak,
		}
	default:
		return Argument{
			Claim:    "values carry verified provenance from an isolated run",
			Evidence: evidence,
			Strength: StrengthModerate,
		}
	}
}

func confidenceArgument(p Perspective, fact *contract.VerifiedFact) Argument {
	return Argument{
		Claim:    fmt.Sprintf("gate confidence of %.2f bounds how much weight the %s case deserves", fact.Confidence(), p),
		Evidence: []string{fmt.Sprintf("gate confidence %.2f", fact.Confidence())},
		Strength: StrengthWeak,
	}
}

// quality scores a report by how well it is evidenced and how substantial it
// is. Unevidenced arguments are defects and pull the score down sharply.
func quality(args []Argument) float64 {
	if len(args) == 0 {
		return 0
	}
	evidenced := 0
	strong := 0
	for _, a := range args {
		if len(a.Evidence) > 0 {
			evidenced++
		}
		if a.Strength == StrengthStrong {
			strong++
		}
	}
	evidencedFrac := float64(evidenced) / float64(len(args))
	countFactor := float64(len(args)) / 5.0
	if countFactor > 1 {
		countFactor = 1
	}
	strongFrac := float64(strong) / float64(len(args))
	return evidencedFrac * (0.6 + 0.25*countFactor + 0.15*strongFrac)
}
