package contract

import (
	"fmt"
	"strings"
	"time"
)

// DataRequirements declares the inputs a plan's script needs: the entities to
// analyse and the inclusive date range of historical data to retrieve.
type DataRequirements struct {
	Entities  []string  `json:"entities"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// PlanContract is the external planner's output: a human-readable description
// of the intended analysis, the planner's reasoning, the data the script
// requires and the script text itself.
//
// A PlanContract is immutable once produced. Components downstream of the
// planner treat the script as an opaque artifact; only the sandbox executor
// may run it and only the gate may certify its output.
type PlanContract struct {
	ID           string           `json:"id"`
	Description  string           `json:"description"`
	Reasoning    string           `json:"reasoning"`
	Requirements DataRequirements `json:"data_requirements"`
	ScriptText   string           `json:"script_text"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Validate reports whether the plan is structurally usable: it must carry a
// non-empty script and at least one entity, and the date range must not be
// inverted.
func (p PlanContract) Validate() error {
	if strings.TrimSpace(p.ScriptText) == "" {
		return fmt.Errorf("plan %s: empty script", p.ID)
	}
	if len(p.Requirements.Entities) == 0 {
		return fmt.Errorf("plan %s: no entities declared", p.ID)
	}
	if p.Requirements.EndDate.Before(p.Requirements.StartDate) {
		return fmt.Errorf("plan %s: inverted date range", p.ID)
	}
	return nil
}
