// Package util holds small cross-cutting helpers shared by the pipeline
// packages.
package util

import "github.com/google/uuid"

// NewID generates a unique identifier for queries, plans, facts and tasks.
func NewID() string {
	return uuid.New().String()
}

// Clamp01 bounds v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
