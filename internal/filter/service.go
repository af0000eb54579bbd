// Package filter is the host side of the rule engine: it owns the chain
// registry, hands each incoming message to a chain, and records the outcome.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/chainfilter/internal/chain"
	"github.com/roach88/chainfilter/internal/event"
	"github.com/roach88/chainfilter/internal/logging"
	"github.com/roach88/chainfilter/internal/metrics"
	"github.com/roach88/chainfilter/internal/permcache"
	"github.com/roach88/chainfilter/internal/store"
)

// EventStore persists filter outcomes. Implemented by *store.Store.
type EventStore interface {
	WriteEvent(ctx context.Context, rec store.EventRecord) error
	ReplacePermissions(ctx context.Context, chain string, perms []string) error
}

// Input is one message to filter.
type Input struct {
	Player   string
	Listener string
	Message  string
}

// Service serializes chain loads and executions.
//
// Chains are not safe for concurrent use, so every Load and Filter call
// holds the service lock for its full duration.
type Service struct {
	mu       sync.Mutex
	registry *chain.Registry
	log      *logging.Manager
	perms    *permcache.Cache
	store    EventStore
	metrics  *metrics.Metrics
	ids      IDGenerator
}

// Option configures a Service.
type Option func(*Service)

// WithLogging sets the logging manager.
// Default: logging.New(nil).
func WithLogging(m *logging.Manager) Option {
	return func(s *Service) {
		s.log = m
	}
}

// WithPermissionCache sets the cache that receives permission interest and
// answers permission conditions.
// Default: a cache with no backing checker, which denies everything.
func WithPermissionCache(c *permcache.Cache) Option {
	return func(s *Service) {
		s.perms = c
	}
}

// WithStore persists every filtered event and each chain's permission interest.
func WithStore(st EventStore) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator sets the event ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// NewService creates a service reading chains from source.
func NewService(source chain.Source, opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.New(nil)
	}
	if s.perms == nil {
		s.perms = permcache.New(nil)
	}
	if s.ids == nil {
		s.ids = UUIDv7Generator{}
	}
	s.registry = chain.NewRegistry(source,
		chain.WithPermissionSink(s.perms),
		chain.WithLogging(s.log),
	)
	return s
}

// Load (re)loads the named chain and everything it includes.
func (s *Service) Load(ctx context.Context, name string) (*chain.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.registry.GetOrCreate(name)
	if err := c.LoadConfigFile(); err != nil {
		code := "UNKNOWN"
		var le *chain.LoadError
		if errors.As(err, &le) {
			code = string(le.Code)
		}
		s.metrics.LoadFailed(name, code)
		s.log.Warn("failed to load chain", "chain", name, "error", err)
		return nil, err
	}

	s.metrics.SetChainRules(name, c.RuleCount())
	if s.store != nil {
		if err := s.store.ReplacePermissions(ctx, name, c.Permissions()); err != nil {
			return c, fmt.Errorf("store permissions for %s: %w", name, err)
		}
	}
	s.log.Info("loaded chain", "chain", name, "rules", c.RuleCount(), "permissions", len(c.Permissions()))
	return c, nil
}

// Filter runs one message through the named chain and returns the final
// event state. The chain must have been loaded.
//
// The state is returned even when persisting the outcome fails.
func (s *Service) Filter(ctx context.Context, name string, in Input) (*event.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.registry.GetOrCreate(name)
	st := event.NewState(s.ids.NewID(), in.Player, event.ListenerName(in.Listener), in.Message)
	st.Authorizer = s.perms

	start := time.Now()
	if err := c.Execute(ctx, st); err != nil {
		return nil, err
	}
	s.metrics.ObserveEvent(name, st.Pattern != nil, st.Cancel, time.Since(start))

	if s.store != nil {
		if err := s.store.WriteEvent(ctx, store.NewEventRecord(name, st)); err != nil {
			return st, fmt.Errorf("store event %s: %w", st.ID, err)
		}
	}
	return st, nil
}

// Warm pre-loads permission decisions for a player.
func (s *Service) Warm(player string) {
	s.perms.Warm(player)
}

// Forget drops cached permission decisions for a player.
func (s *Service) Forget(player string) {
	s.perms.Forget(player)
}

// Permissions returns the permission interest of every chain loaded so far.
func (s *Service) Permissions() []string {
	return s.perms.Interest()
}

// Registry returns the chain registry. Callers must not load or apply
// chains through it while the service is in use.
func (s *Service) Registry() *chain.Registry {
	return s.registry
}
