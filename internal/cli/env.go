package cli

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/chainfilter/internal/chain"
	"github.com/roach88/chainfilter/internal/config"
	"github.com/roach88/chainfilter/internal/filter"
	"github.com/roach88/chainfilter/internal/logging"
	"github.com/roach88/chainfilter/internal/metrics"
	"github.com/roach88/chainfilter/internal/permcache"
	"github.com/roach88/chainfilter/internal/store"
)

// environment is the resolved runtime shared by the commands: configuration,
// logging, the optional event store and the filter service.
type environment struct {
	cfg      *config.Config
	source   chain.DirSource
	log      *logging.Manager
	store    *store.Store // nil without --db
	registry *prometheus.Registry
	svc      *filter.Service
}

// openEnvironment resolves configuration for cmd and builds the service.
// The caller must Close the environment.
func openEnvironment(cmd *cobra.Command, opts *RootOptions) (*environment, error) {
	cfg, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	env := &environment{
		cfg:      cfg,
		source:   chain.DirSource{Dir: cfg.RulesDir},
		registry: prometheus.NewRegistry(),
	}

	var ruleLog logging.RuleLogWriter
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		env.store = st
		ruleLog = st
	}

	env.log = cfg.Logging(newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.DebugMode), ruleLog)

	svcOpts := []filter.Option{
		filter.WithLogging(env.log),
		filter.WithPermissionCache(permcache.New(nil)),
		filter.WithMetrics(metrics.New(env.registry)),
	}
	if env.store != nil {
		svcOpts = append(svcOpts, filter.WithStore(env.store))
	}
	env.svc = filter.NewService(env.source, svcOpts...)
	return env, nil
}

// chainName returns the chain named on the command line, or the configured
// default chain.
func (e *environment) chainName(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return e.cfg.DefaultChain
}

// Close releases the event store.
func (e *environment) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// newLogger writes text logs to w. Warnings are always shown; informational
// lines, debug tiers and rule log lines need --verbose or a debug tier.
func newLogger(w io.Writer, verbose bool, debug logging.DebugMode) *slog.Logger {
	level := slog.LevelWarn
	if verbose || debug != logging.DebugOff {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
