package schema

import (
	"context"
	"sync"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// Source produces a fresh catalog, typically by reading a file or
// introspecting a database.
type Source func(ctx context.Context) (*Catalog, error)

// FileSource loads the catalog from a schema file on every call
func FileSource(path string) Source {
	return func(ctx context.Context) (*Catalog, error) {
		return LoadFile(path)
	}
}

// Registry holds the catalog currently in effect. Catalogs themselves never
// change; a reload swaps in a new one, so callers holding the previous catalog
// keep a consistent view for the rest of their request.
type Registry struct {
	mu      sync.RWMutex
	current *Catalog
	source  Source
	logger  *observability.Logger
}

// NewRegistry creates a registry that starts with the given catalog
func NewRegistry(initial *Catalog, source Source) *Registry {
	return &Registry{
		current: initial,
		source:  source,
		logger:  observability.NewLogger("schema"),
	}
}

// Current returns the catalog in effect
func (r *Registry) Current() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload fetches a catalog from the source and swaps it in. On failure the
// previous catalog stays in effect.
func (r *Registry) Reload(ctx context.Context) (*Catalog, error) {
	if r.source == nil {
		return r.Current(), nil
	}

	next, err := r.source(ctx)
	if err != nil {
		r.logger.Error(ctx, "Schema reload failed, keeping previous catalog", err, nil)
		observability.GetGlobalMetrics().Inc("schema_reloads_total", map[string]string{"status": "error"})
		return nil, err
	}

	r.mu.Lock()
	previous := r.current
	r.current = next
	r.mu.Unlock()

	fields := map[string]interface{}{
		"version": next.Version(),
		"tables":  len(next.TableNames()),
	}
	if previous != nil {
		fields["previous_version"] = previous.Version()
	}
	r.logger.Info(ctx, "Schema catalog reloaded", fields)
	observability.GetGlobalMetrics().Inc("schema_reloads_total", map[string]string{"status": "success"})

	return next, nil
}
