package source

import (
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/model"
)

const basePriority = 1.0

var errSourceNotFound = goerr.Wrap(model.ErrNotFound, "source not found")

type sourceStats struct {
	success int
	failure int
}

// Registry holds the configured sources and tracks their priorities
// from invocation outcomes. Priorities feed the learning component's
// re-ranking and the stats surface.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
	stats   map[string]*sourceStats
}

// NewRegistry creates a registry over the given sources
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{
		sources: make(map[string]Source, len(sources)),
		stats:   make(map[string]*sourceStats, len(sources)),
	}

	for _, s := range sources {
		if _, exists := r.sources[s.Name()]; exists {
			continue
		}
		r.sources[s.Name()] = s
		r.order = append(r.order, s.Name())
		r.stats[s.Name()] = &sourceStats{}
	}

	return r
}

// Get returns the source with the given name
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[name]
	if !ok {
		return nil, goerr.Wrap(errSourceNotFound, "unknown source", goerr.V("name", name))
	}
	return s, nil
}

// Names returns all registered source names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Report records the outcome of one invocation
func (r *Registry) Report(name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, exists := r.stats[name]
	if !exists {
		return
	}
	if ok {
		st.success++
	} else {
		st.failure++
	}
}

// priority derives a source's current priority from its track record:
// base 1.0, scaled into [0.5, 1.5] by observed success rate.
func (st *sourceStats) priority() float64 {
	total := st.success + st.failure
	if total == 0 {
		return basePriority
	}
	return 0.5 + float64(st.success)/float64(total)
}

// Ranked returns all sources with their current priorities, highest
// first, ties in registration order.
func (r *Registry) Ranked() []learning.ScoredSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ranked := make([]learning.ScoredSource, 0, len(r.order))
	for _, name := range r.order {
		ranked = append(ranked, learning.ScoredSource{
			Name:     name,
			Priority: r.stats[name].priority(),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})
	return ranked
}
