package ports

import (
	"context"

	"github.com/aretw0/leadflow/pkg/domain"
)

// OptionResolver fetches the selectable options of a dynamic query.
// Implementations always issue a live fetch and never retry.
type OptionResolver interface {
	Resolve(ctx context.Context, query string, state domain.State) ([]domain.Option, error)
}

// Enricher reports the enrichment mapping of a query: option source key -> state key.
// A query without enrichment returns false.
type Enricher interface {
	Enrichment(query string) (map[string]string, bool)
}
