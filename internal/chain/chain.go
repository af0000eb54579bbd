// Package chain compiles rule text into chains of entries and executes them
// against event state.
//
// A Chain is an ordered list of Entry values. An entry is either a single
// compiled *rule.Rule or another *Chain pulled in with an include directive.
// Included chains are owned by the Registry and shared by reference between
// every chain that includes them.
//
// Loading is guarded by a tri-state lifecycle (Unloaded, Loading, Ready).
// A chain in the Loading state refuses to be included, which breaks mutual
// include loops.
package chain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/chainfilter/internal/event"
	"github.com/roach88/chainfilter/internal/rule"
)

// Entry is one executable element of a chain.
type Entry interface {
	// Apply runs the entry against the event state.
	Apply(st *event.State) error

	// IsValid reports whether the entry may be appended to a chain.
	IsValid() bool

	// Permissions returns the sorted set of permissions the entry may check.
	Permissions() []string
}

var (
	_ Entry = (*rule.Rule)(nil)
	_ Entry = (*Chain)(nil)
)

// LoadState is a chain's position in its load lifecycle.
type LoadState int

const (
	// Unloaded chains were never loaded, were reset, or failed to load.
	Unloaded LoadState = iota

	// Loading chains are mid-compile and cannot be included.
	Loading

	// Ready chains compiled at least one entry.
	Ready
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// Chain is a named, ordered list of entries. Create chains through
// Registry.GetOrCreate.
type Chain struct {
	name     string
	registry *Registry
	state    LoadState
	entries  []Entry
}

// Name returns the chain's configuration name.
func (c *Chain) Name() string {
	return c.name
}

// State returns the chain's load state.
func (c *Chain) State() LoadState {
	return c.state
}

// Entries returns the chain's entries in execution order.
func (c *Chain) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Len returns the number of direct entries.
func (c *Chain) Len() int {
	return len(c.entries)
}

// IsValid reports whether the chain is Ready. Only valid chains can be
// appended as an include.
func (c *Chain) IsValid() bool {
	return c.state == Ready
}

// Reset discards every entry and returns the chain to Unloaded.
// Included chains are not reset; they remain registered and shared.
func (c *Chain) Reset() {
	c.entries = nil
	c.state = Unloaded
}

// RuleCount returns the number of rules in the chain, counting the rules of
// included chains recursively.
func (c *Chain) RuleCount() int {
	n := 0
	for _, e := range c.entries {
		if sub, ok := e.(*Chain); ok {
			n += sub.RuleCount()
			continue
		}
		n++
	}
	return n
}

// Permissions returns the sorted union of permissions declared by every
// entry, recursing into included chains.
func (c *Chain) Permissions() []string {
	var perms []string
	for _, e := range c.entries {
		perms = append(perms, e.Permissions()...)
	}
	slices.Sort(perms)
	return slices.Compact(perms)
}

// append adds an entry if it is valid.
func (c *Chain) append(e Entry) bool {
	if !e.IsValid() {
		return false
	}
	c.entries = append(c.entries, e)
	return true
}

// LoadConfigFile reloads the chain from its source and, on success,
// publishes the chain's permission interest to the registry's sink.
//
// Every chain the source includes is reloaded too.
func (c *Chain) LoadConfigFile() error {
	if err := c.load(); err != nil {
		return err
	}
	if c.registry.sink != nil {
		c.registry.sink.AddPermissions(c.Permissions())
	}
	return nil
}

// load resets the chain and compiles it from its source.
func (c *Chain) load() error {
	c.Reset()

	rc, err := c.registry.source.Open(c.name)
	if err != nil {
		code := ErrCodeReadFailed
		if errors.Is(err, ErrSourceNotFound) {
			code = ErrCodeSourceNotFound
		}
		return &LoadError{Code: code, Chain: c.name, Err: err}
	}
	defer rc.Close()

	return c.Parse(rc)
}
