package indexer

import (
	"sort"
	"sync"
)

// generations tracks which indexing run of each source is visible.
//
// A run's points are written while its generation is hidden, then commit
// makes it current and hides the previous one in a single step. Searches
// exclude every hidden generation and re-check the set once the query
// returns, so a reader never mixes points from two runs.
type generations struct {
	mu      sync.RWMutex
	current map[string]string // source -> generation
	hidden  map[string]string // generation -> source
}

func newGenerations() *generations {
	return &generations{
		current: make(map[string]string),
		hidden:  make(map[string]string),
	}
}

func (g *generations) hide(source, gen string) {
	if gen == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hidden[gen] = source
}

// commit makes gen the visible generation of source.
func (g *generations) commit(source, gen string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.current[source]; ok && prev != gen && prev != "" {
		g.hidden[prev] = source
	}
	g.current[source] = gen
	delete(g.hidden, gen)
}

// release forgets hidden generations of source once their points are gone.
func (g *generations) release(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for gen, s := range g.hidden {
		if s == source {
			delete(g.hidden, gen)
		}
	}
}

// forget drops one hidden generation whose points were removed.
func (g *generations) forget(gen string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.hidden, gen)
}

func (g *generations) drop(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.current, source)
	for gen, s := range g.hidden {
		if s == source {
			delete(g.hidden, gen)
		}
	}
}

func (g *generations) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = make(map[string]string)
	g.hidden = make(map[string]string)
}

func (g *generations) isHidden(gen string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.hidden[gen]
	return ok
}

func (g *generations) currentOf(source string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gen, ok := g.current[source]
	return gen, ok
}

// hiddenList returns a sorted snapshot for search filters.
func (g *generations) hiddenList() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.hidden) == 0 {
		return nil
	}
	out := make([]string, 0, len(g.hidden))
	for gen := range g.hidden {
		out = append(out, gen)
	}
	sort.Strings(out)
	return out
}

// sourceLocks serializes ingestion per source.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sourceLocks) lock(source string) func() {
	l.mu.Lock()
	m, ok := l.locks[source]
	if !ok {
		m = &sync.Mutex{}
		l.locks[source] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
