// Package fetch retrieves the historical data a plan requires and returns it
// as a cutoff-bounded data contract. A fetcher never emits a datapoint dated
// after the cutoff it was asked for; the gate treats any such point as a
// temporal violation.
package fetch

import (
	"context"
	"fmt"

	"github.com/sergeeey/verifind/contract"
)

// DataFetcher resolves a plan's data requirements against a data source,
// bounded by the query's cutoff.
type DataFetcher interface {
	Fetch(ctx context.Context, req contract.DataRequirements, qctx contract.QueryContext) (contract.DataContract, error)
}

// FetchError wraps failures of the fetch stage.
type FetchError struct {
	QueryID string
	Entity  string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("fetch: query %s: entity %s: %v", e.QueryID, e.Entity, e.Err)
	}
	return fmt.Sprintf("fetch: query %s: %v", e.QueryID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
