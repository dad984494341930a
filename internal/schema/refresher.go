package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// DefaultRefreshInterval is used when a Refresher is given no interval
const DefaultRefreshInterval = 5 * time.Minute

// Refresher reloads a registry on a fixed interval. It keeps introspected
// catalogs current in the way a Watcher does for schema files.
type Refresher struct {
	registry *Registry
	interval time.Duration
	logger   *observability.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRefresher creates a refresher for registry
func NewRefresher(registry *Registry, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		registry: registry,
		interval: interval,
		logger:   observability.NewLogger("schema_refresher"),
	}
}

// Start begins periodic reloads until Stop is called or ctx ends
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("schema refresher already running")
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(ctx, r.stop, r.done)

	r.logger.Info(ctx, "Schema refresher started", map[string]interface{}{
		"interval": r.interval.String(),
	})
	return nil
}

// Stop ends the refresh loop and waits for an in-flight reload
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	close(r.stop)
	<-r.done
	r.running = false
}

func (r *Refresher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Reload logs its own outcome and keeps the previous catalog on failure
			_, _ = r.registry.Reload(ctx)
		}
	}
}

// ExcludeTables wraps source so that tables whose names match any of the
// patterns are left out, together with foreign keys pointing at them.
func ExcludeTables(source Source, patterns []string) (Source, error) {
	if len(patterns) == 0 {
		return source, nil
	}

	excludes := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid table exclude pattern %q: %w", p, err)
		}
		excludes = append(excludes, re)
	}
	excluded := func(name string) bool {
		for _, re := range excludes {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	}

	return func(ctx context.Context) (*Catalog, error) {
		catalog, err := source(ctx)
		if err != nil {
			return nil, err
		}

		specs := catalog.Specs()
		filtered := make(map[string]TableSpec, len(specs))
		for name, spec := range specs {
			if excluded(name) {
				continue
			}
			fks := make([]string, 0, len(spec.ForeignKeys))
			for _, raw := range spec.ForeignKeys {
				if fk, err := ParseForeignKey(raw); err == nil && excluded(fk.ReferencedTable) {
					continue
				}
				fks = append(fks, raw)
			}
			spec.ForeignKeys = fks
			filtered[name] = spec
		}
		if len(filtered) == len(specs) {
			return catalog, nil
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("every table matched the exclude patterns %s", strings.Join(patterns, ", "))
		}
		return FromMap(filtered)
	}, nil
}
