package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sergeeey/verifind/contract"
	"github.com/sergeeey/verifind/internal/util"
	"github.com/sergeeey/verifind/logging"
	"github.com/sergeeey/verifind/model"
)

const planSystem = `You are a financial analysis planner. Given a query and a
data cutoff date, produce a plan as a single JSON object with exactly these
fields:

{
  "description": "<one sentence describing the analysis>",
  "reasoning": "<why this analysis answers the query>",
  "entities": ["TICKER", ...],
  "start_date": "YYYY-MM-DD",
  "end_date": "YYYY-MM-DD",
  "script": "<python script text>"
}

The script reads its input series with load_inputs() and reports every result
with publish(name, value). All values must be numeric. The date range must end
on or before the cutoff. Respond with the JSON object only.`

// callLogger is the richer model call record a logging.PipelineLogger offers
// beyond the minimal Logger interface.
type callLogger interface {
	LogModelCall(model string, tokens int, dur time.Duration, success bool, err error)
}

// ModelPlannerOptions configures a ModelPlanner.
type ModelPlannerOptions struct {
	Temperature float64
	MaxTokens   int64
	Logger      logging.Logger
}

// ModelPlanner asks a language model for a plan and parses the response into
// a validated PlanContract.
type ModelPlanner struct {
	model  model.Model
	opts   ModelPlannerOptions
	logger logging.Logger
}

// NewModelPlanner constructs a ModelPlanner over the given model.
func NewModelPlanner(m model.Model, optFns ...func(o *ModelPlannerOptions)) *ModelPlanner {
	opts := ModelPlannerOptions{
		Temperature: 0.2,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ModelPlanner{model: m, opts: opts, logger: opts.Logger}
}

// Plan implements Planner.
func (p *ModelPlanner) Plan(ctx context.Context, qctx contract.QueryContext) (contract.PlanContract, error) {
	prompt := fmt.Sprintf("Query: %s\nReference date: %s\nData cutoff: %s",
		qctx.QueryText,
		qctx.ReferenceDate.Format("2006-01-02"),
		qctx.EffectiveCutoff().Format("2006-01-02"),
	)

	start := time.Now()
	resp, err := p.model.Complete(ctx, model.Request{
		System:      planSystem,
		Prompt:      prompt,
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if cl, ok := p.logger.(callLogger); ok {
		cl.LogModelCall(p.model.Info().Name, resp.TokensUsed, time.Since(start), err == nil, err)
	}
	if err != nil {
		return contract.PlanContract{}, &PlannerError{QueryID: qctx.QueryID, Err: err}
	}

	plan, err := parsePlan(resp.Text)
	if err != nil {
		return contract.PlanContract{}, &PlannerError{QueryID: qctx.QueryID, Err: err}
	}
	if err := plan.Validate(); err != nil {
		return contract.PlanContract{}, &PlannerError{QueryID: qctx.QueryID, Permanent: true, Err: err}
	}

	p.logger.Info("plan produced",
		"query", qctx.QueryID,
		"plan", plan.ID,
		"entities", plan.Requirements.Entities,
		"tokens", resp.TokensUsed,
	)
	return plan, nil
}

type planPayload struct {
	Description string   `json:"description"`
	Reasoning   string   `json:"reasoning"`
	Entities    []string `json:"entities"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Script      string   `json:"script"`
}

// parsePlan decodes the model's JSON plan, tolerating a markdown code fence
// around the object.
func parsePlan(text string) (contract.PlanContract, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var payload planPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return contract.PlanContract{}, fmt.Errorf("malformed plan response: %w", err)
	}

	start, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		return contract.PlanContract{}, fmt.Errorf("malformed start_date %q: %w", payload.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", payload.EndDate)
	if err != nil {
		return contract.PlanContract{}, fmt.Errorf("malformed end_date %q: %w", payload.EndDate, err)
	}

	return contract.PlanContract{
		ID:          util.NewID(),
		Description: payload.Description,
		Reasoning:   payload.Reasoning,
		Requirements: contract.DataRequirements{
			Entities:  payload.Entities,
			StartDate: start,
			EndDate:   end,
		},
		ScriptText: payload.Script,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
