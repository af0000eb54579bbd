// Package permcache keeps the set of permissions loaded rules care about and
// caches per-player decisions for them.
//
// Chains publish their permission interest after every successful load.
// Hosts call Warm when a player joins so rule conditions never block on a
// permission backend during filtering.
package permcache

import (
	"maps"
	"slices"
	"sync"
)

// Checker answers a permission check against the host's permission backend.
type Checker interface {
	Check(player, permission string) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(player, permission string) bool

// Check implements Checker.
func (f CheckerFunc) Check(player, permission string) bool {
	return f(player, permission)
}

// Cache implements chain.PermissionSink and event.Authorizer.
//
// Thread-safety: All methods are safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	checker   Checker
	interest  map[string]struct{}
	decisions map[string]map[string]bool
}

// New creates a cache backed by checker. A nil checker denies everything.
func New(checker Checker) *Cache {
	return &Cache{
		checker:   checker,
		interest:  make(map[string]struct{}),
		decisions: make(map[string]map[string]bool),
	}
}

// AddPermissions adds perms to the interest set.
func (c *Cache) AddPermissions(perms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range perms {
		c.interest[p] = struct{}{}
	}
}

// Interest returns the interest set, sorted.
func (c *Cache) Interest() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.interest))
}

// Warm evaluates every permission of interest for player and caches the
// results, replacing anything cached before.
func (c *Cache) Warm(player string) {
	perms := c.Interest()
	decisions := make(map[string]bool, len(perms))
	for _, p := range perms {
		decisions[p] = c.check(player, p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions[player] = decisions
}

// Has reports whether player holds permission. Cached decisions are used
// when present; otherwise the checker is consulted and the answer cached if
// the permission is of interest.
func (c *Cache) Has(player, permission string) bool {
	c.mu.RLock()
	d, ok := c.decisions[player][permission]
	_, interesting := c.interest[permission]
	c.mu.RUnlock()
	if ok {
		return d
	}

	d = c.check(player, permission)
	if interesting {
		c.mu.Lock()
		if c.decisions[player] == nil {
			c.decisions[player] = make(map[string]bool)
		}
		c.decisions[player][permission] = d
		c.mu.Unlock()
	}
	return d
}

// Forget drops every cached decision for player.
func (c *Cache) Forget(player string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.decisions, player)
}

// Cached reports whether a decision for player and permission is cached.
func (c *Cache) Cached(player, permission string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.decisions[player][permission]
	return ok
}

func (c *Cache) check(player, permission string) bool {
	if c.checker == nil {
		return false
	}
	return c.checker.Check(player, permission)
}
