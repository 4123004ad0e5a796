package decompose

import (
	"fmt"
	"regexp"
	"strings"
)

// SubtaskKind distinguishes leaf analyses from tasks that combine earlier
// results.
type SubtaskKind string

const (
	// KindAnalysis is a per-entity leaf analysis.
	KindAnalysis SubtaskKind = "analysis"
	// KindAggregate combines the outputs of its dependencies.
	KindAggregate SubtaskKind = "aggregate"
)

// Subtask is one node of the decomposed query.
type Subtask struct {
	ID        string
	Kind      SubtaskKind
	QueryText string
	Entities  []string
	DependsOn []string
}

// Decomposition is the full result: the ordered subtasks plus the dependency
// graph built over them.
type Decomposition struct {
	Subtasks []Subtask
	Graph    *DependencyGraph
}

// ByID returns the subtask with the given id.
func (d Decomposition) ByID(id string) (Subtask, bool) {
	for _, st := range d.Subtasks {
		if st.ID == id {
			return st, true
		}
	}
	return Subtask{}, false
}

var (
	// sequencingCue splits a compound query into ordered stages.
	sequencingCue = regexp.MustCompile(`(?i)\b(?:,\s*then\b|\bthen\b|;\s*|\bafter that\b|\bfinally\b)`)
	// comparisonCue detects multi-entity comparison phrasing inside a stage.
	comparisonCue = regexp.MustCompile(`(?i)\b(?:compare|versus|vs\.?|against|relative to)\b`)
	// conjunction splits an entity list ("A and B", "A, B and C").
	conjunction = regexp.MustCompile(`(?i)\s*(?:,|\band\b|&)\s*`)
	// entityToken matches ticker-style entity names.
	entityToken = regexp.MustCompile(`\b[A-Z][A-Z0-9.]{0,5}\b`)
)

// stopwords are uppercase tokens that look like tickers but never are.
var stopwords = map[string]bool{
	"A": false, // single letters stay valid tickers
	"THE": true, "AND": true, "VS": true, "OR": true, "FOR": true,
	"OF": true, "IN": true, "ON": true, "TO": true, "SMA": true,
	"EMA": true, "RSI": true, "PE": true, "YOY": true, "QOQ": true,
}

// Decompose splits a compound query into a dependency-ordered set of
// subtasks. Stages separated by sequencing cues execute in order; a
// comparison stage fans out into one analysis task per entity; a stage that
// names no new entities becomes an aggregation over everything before it.
//
// "compare A and B, then correlate" therefore yields tasks {1:A, 2:B,
// 3:depends(1,2)}: wave one runs the two analyses concurrently, wave two the
// correlation.
func Decompose(queryText string) (Decomposition, error) {
	text := strings.TrimSpace(queryText)
	if text == "" {
		return Decomposition{}, fmt.Errorf("%w: empty query", ErrUnsatisfiableQuery)
	}

	stages := splitStages(text)
	graph := NewDependencyGraph()
	var subtasks []Subtask
	var previousStage []string
	next := 1

	for _, stage := range stages {
		entities := ExtractEntities(stage)

		switch {
		case len(entities) > 1 && comparisonCue.MatchString(stage):
			// Fan out one analysis per entity; they are mutually independent.
			var ids []string
			for _, entity := range entities {
				id := fmt.Sprintf("task-%d", next)
				next++
				subtasks = append(subtasks, Subtask{
					ID:        id,
					Kind:      KindAnalysis,
					QueryText: stage,
					Entities:  []string{entity},
				})
				graph.Add(id)
				ids = append(ids, id)
			}
			previousStage = ids

		case len(entities) == 0 && len(previousStage) > 0:
			// No new operands: this stage combines what came before.
			id := fmt.Sprintf("task-%d", next)
			next++
			subtasks = append(subtasks, Subtask{
				ID:        id,
				Kind:      KindAggregate,
				QueryText: stage,
				DependsOn: previousStage,
			})
			graph.Add(id, previousStage...)
			previousStage = []string{id}

		default:
			id := fmt.Sprintf("task-%d", next)
			next++
			st := Subtask{ID: id, Kind: KindAnalysis, QueryText: stage, Entities: entities}
			// A sequenced stage waits for the stage before it.
			if len(previousStage) > 0 {
				st.DependsOn = previousStage
			}
			subtasks = append(subtasks, st)
			graph.Add(id, st.DependsOn...)
			previousStage = []string{id}
		}
	}

	if _, err := graph.Waves(); err != nil {
		return Decomposition{}, err
	}
	return Decomposition{Subtasks: subtasks, Graph: graph}, nil
}

func splitStages(text string) []string {
	parts := sequencingCue.Split(text, -1)
	var stages []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stages = append(stages, s)
		}
	}
	if len(stages) == 0 {
		stages = []string{text}
	}
	return stages
}

// ExtractEntities pulls ticker-style entity names out of a query fragment,
// preserving first-seen order and dropping known keyword lookalikes.
func ExtractEntities(text string) []string {
	seen := map[string]bool{}
	var entities []string
	for _, token := range entityToken.FindAllString(text, -1) {
		if stopwords[token] || seen[token] {
			continue
		}
		seen[token] = true
		entities = append(entities, token)
	}
	return entities
}
