// Package contract defines the immutable data contracts exchanged between
// the planner, the sandbox executor, the truth boundary gate and the debate
// layer.
//
// The types here are deliberately value-oriented: a PlanContract or
// ExecutionResult never changes after construction, and a VerifiedFact keeps
// its extracted values and script hash frozen for its whole life. The only
// sanctioned mutation in the package is a VerifiedFact's confidence score,
// which the debate engine adjusts after synthesis.
package contract
