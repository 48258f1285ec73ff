// Package options loads the reference lists behind filter dropdowns
// (laboratories, product types, users, products) side by side.
package options

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Option is one dropdown entry.
type Option struct {
	ID    int64
	Label string
}

type LoaderFunc func(ctx context.Context) ([]Option, error)

// Set holds every loaded list by key. Failed lists are empty and named in
// Failed.
type Set struct {
	Lists  map[string][]Option
	Failed []string
}

func (s Set) Get(key string) []Option {
	if list, ok := s.Lists[key]; ok {
		return list
	}
	return []Option{}
}

// LoadAll runs every loader concurrently. A loader that fails gets an empty
// list and does not hold up or cancel the others.
func LoadAll(ctx context.Context, loaders map[string]LoaderFunc) Set {
	var (
		mu  sync.Mutex
		set = Set{Lists: make(map[string][]Option, len(loaders))}
	)

	var g errgroup.Group
	for key, load := range loaders {
		key, load := key, load
		g.Go(func() error {
			list, err := load(ctx)
			if err != nil {
				log.Printf("[options] WARN: %s failed to load: %v", key, err)
				list = []Option{}
			}
			if list == nil {
				list = []Option{}
			}

			mu.Lock()
			defer mu.Unlock()
			set.Lists[key] = list
			if err != nil {
				set.Failed = append(set.Failed, key)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(set.Failed)
	return set
}

// Guard tells a late result whether its screen is still there to receive it.
type Guard struct {
	alive atomic.Bool
}

func NewGuard() *Guard {
	g := &Guard{}
	g.alive.Store(true)
	return g
}

func (g *Guard) Alive() bool { return g.alive.Load() }

// Close marks the owner as gone. Results arriving afterwards are dropped by
// Apply.
func (g *Guard) Close() { g.alive.Store(false) }

// Apply runs fn only while the guard is alive and reports whether it ran.
func (g *Guard) Apply(fn func()) bool {
	if !g.Alive() {
		return false
	}
	fn()
	return true
}
