package gate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sergeeey/verifind/contract"
)

// isoDatePattern matches ISO-8601 date literals embedded in script text.
var isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// futureReachPatterns are script idioms that compute a date relative to "now"
// and offset it forward. Any of them is a temporal violation regardless of
// what the offset evaluates to: scripts must operate on fetched history only.
var futureReachPatterns = []string{
	"date.today() +",
	"date.today()+",
	".now() +",
	".now()+",
	"utcnow() +",
	"utcnow()+",
}

// temporalViolation checks both the plan's declared data window and the
// script text against the cutoff. It returns a human-readable detail string
// when the plan reaches into the future.
func temporalViolation(plan contract.PlanContract, cutoff time.Time) (string, bool) {
	if end := plan.Requirements.EndDate; !end.IsZero() && end.After(cutoff) {
		return fmt.Sprintf("plan data range ends %s, after cutoff %s",
			end.Format("2006-01-02"), cutoff.Format("2006-01-02")), true
	}
	if start := plan.Requirements.StartDate; !start.IsZero() && start.After(cutoff) {
		return fmt.Sprintf("plan data range starts %s, after cutoff %s",
			start.Format("2006-01-02"), cutoff.Format("2006-01-02")), true
	}

	for _, pattern := range futureReachPatterns {
		if strings.Contains(plan.ScriptText, pattern) {
			return fmt.Sprintf("script computes a future-relative date (%q)", pattern), true
		}
	}

	for _, match := range isoDatePattern.FindAllString(plan.ScriptText, -1) {
		d, err := time.Parse("2006-01-02", match)
		if err != nil {
			continue
		}
		if d.After(cutoff) {
			return fmt.Sprintf("script references date %s beyond cutoff %s", match, cutoff.Format("2006-01-02")), true
		}
	}
	return "", false
}

// looksLikeRatio reports whether an output name denotes a ratio-like metric
// where tight plausibility bounds apply.
func looksLikeRatio(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"ratio", "pct", "percent", "margin", "yield", "rate"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptSafetyScore penalizes script constructs that widen the attack or
// error surface. The score starts at 1 and loses a step per risky token
// class present.
func scriptSafetyScore(script string) float64 {
	risky := []string{"eval(", "exec(", "__import__", "subprocess", "import os", "open(", "socket"}
	score := 1.0
	for _, token := range risky {
		if strings.Contains(script, token) {
			score -= 0.15
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
