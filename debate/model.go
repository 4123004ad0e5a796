package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/logging"
	"github.com/sergeeey/verifind/model"
)

// ModelEngineOptions configures the model-driven debate adapter.
type ModelEngineOptions struct {
	Synthesis   SynthesisConfig
	Logger      logging.Logger
	Temperature float64
}

// ModelEngine drives the three perspectives through a language model. It
// satisfies the same Adapter contract as the rule-based Engine, so the two
// are interchangeable behind the orchestrator.
//
// A perspective whose completion cannot be parsed into a well-formed report
// is dropped, exactly like a malformed rule-based perspective; the model
// never gets a second attempt at the same fact.
type ModelEngine struct {
	model  model.Model
	cfg    SynthesisConfig
	temp   float64
	logger logging.Logger
}

// NewModelEngine constructs a model-driven debate adapter.
func NewModelEngine(m model.Model, optFns ...func(o *ModelEngineOptions)) *ModelEngine {
	opts := ModelEngineOptions{Synthesis: DefaultSynthesisConfig(), Logger: logging.NoOpLogger{}, Temperature: 0.4}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ModelEngine{model: m, cfg: opts.Synthesis, temp: opts.Temperature, logger: opts.Logger}
}

const perspectiveSystem = `You are one voice in a structured financial debate.
Argue only from the verified values and query context you are given; never
invent numbers. Respond with a single JSON object:
{"arguments":[{"claim":"...","evidence":["..."],"strength":"strong|moderate|weak"}],"quality_score":0.0}
Produce between 3 and 5 arguments, every one citing evidence.`

// Debate implements Adapter.
func (e *ModelEngine) Debate(ctx context.Context, fact *contract.VerifiedFact, qctx contract.QueryContext) ([]DebateReport, Synthesis, error) {
	perspectives := []Perspective{PerspectiveBull, PerspectiveBear, PerspectiveNeutral}
	reports := make([]DebateReport, len(perspectives))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range perspectives {
		g.Go(func() error {
			report, err := e.runPerspective(gctx, p, fact, qctx)
			if err != nil {
				// A failed perspective is dropped, not fatal; leave the slot
				// invalid so synthesis skips it.
				e.logger.Warn("perspective dropped", "perspective", string(p), "error", err)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Synthesis{}, err
	}

	syn, err := Synthesize(reports, e.cfg)
	if err != nil {
		e.logger.Warn("debate failed closed", "query_id", qctx.QueryID, "error", err)
		return reports, Synthesis{}, err
	}

	if syn.Confidence < fact.Confidence() {
		if err := fact.ReduceConfidence(syn.Confidence); err != nil {
			return reports, Synthesis{}, err
		}
	} else {
		syn.Confidence = fact.Confidence()
	}
	return reports, syn, nil
}

func (e *ModelEngine) runPerspective(ctx context.Context, p Perspective, fact *contract.VerifiedFact, qctx contract.QueryContext) (DebateReport, error) {
	values, _ := json.Marshal(fact.ExtractedValues())
	prompt := fmt.Sprintf(
		"Perspective: %s\nQuery: %s\nReference date: %s\nVerified values: %s\nGate confidence: %.2f",
		p, qctx.QueryText, qctx.ReferenceDate.Format("2006-01-02"), values, fact.Confidence(),
	)

	resp, err := e.model.Complete(ctx, model.Request{
		System:      perspectiveSystem,
		Prompt:      prompt,
		Temperature: e.temp,
	})
	if err != nil {
		return DebateReport{}, err
	}

	report, err := parseReport(resp.Text)
	if err != nil {
		return DebateReport{}, err
	}
	report.Perspective = p
	if !report.Valid() {
		return DebateReport{}, fmt.Errorf("malformed report for %s", p)
	}
	return report, nil
}

// parseReport extracts the JSON object from a completion, tolerating
// surrounding prose or markdown fences.
func parseReport(text string) (DebateReport, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return DebateReport{}, fmt.Errorf("no JSON object in completion")
	}
	var report DebateReport
	if err := json.Unmarshal([]byte(text[start:end+1]), &report); err != nil {
		return DebateReport{}, fmt.Errorf("decode report: %w", err)
	}
	if report.QualityScore < 0 || report.QualityScore > 1 {
		return DebateReport{}, fmt.Errorf("quality score %g out of range", report.QualityScore)
	}
	return report, nil
}
