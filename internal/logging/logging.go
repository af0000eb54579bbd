// Package logging provides the two log channels the rule engine writes to.
//
// The rule log is a persistent, leveled channel for events whose rules asked
// for logging. Its level is configurable and every line can be mirrored to a
// RuleLogWriter (the SQLite store in production).
//
// The debug log is tiered: DebugLow, DebugMedium and DebugHigh only emit when
// the configured DebugMode is at least that tier. Per-event traces use the
// high tier so they cost nothing in normal operation.
//
// Warnings and summaries are always emitted through the underlying slog.Logger.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DebugMode selects how much debug output is emitted.
type DebugMode int

const (
	DebugOff DebugMode = iota
	DebugLow
	DebugMedium
	DebugHigh
)

var debugModeNames = []string{"off", "low", "medium", "high"}

// String returns the lowercase name of the mode.
func (m DebugMode) String() string {
	if m < DebugOff || m > DebugHigh {
		return fmt.Sprintf("DebugMode(%d)", int(m))
	}
	return debugModeNames[m]
}

// ParseDebugMode converts "off", "low", "medium" or "high" to a DebugMode.
func ParseDebugMode(s string) (DebugMode, error) {
	for i, name := range debugModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return DebugMode(i), nil
		}
	}
	return DebugOff, fmt.Errorf("invalid debug mode %q: must be one of %v", s, debugModeNames)
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// RuleLogWriter persists rule log lines.
// Implemented by store.Store.
type RuleLogWriter interface {
	WriteRuleLog(ctx context.Context, eventID, line string) error
}

// Manager routes engine log output to the rule log and the tiered debug log.
type Manager struct {
	logger    *slog.Logger
	ruleLevel slog.Level
	debug     DebugMode
	writer    RuleLogWriter
}

// Option configures a Manager.
type Option func(*Manager)

// WithRuleLevel sets the level rule log lines are emitted at.
// Default: slog.LevelInfo.
func WithRuleLevel(level slog.Level) Option {
	return func(m *Manager) {
		m.ruleLevel = level
	}
}

// WithDebugMode sets the debug tier.
// Default: DebugOff.
func WithDebugMode(mode DebugMode) Option {
	return func(m *Manager) {
		m.debug = mode
	}
}

// WithRuleLogWriter mirrors every rule log line to w.
func WithRuleLogWriter(w RuleLogWriter) Option {
	return func(m *Manager) {
		m.writer = w
	}
}

// New creates a Manager writing to logger.
// A nil logger uses slog.Default().
func New(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:    logger,
		ruleLevel: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Logger returns the underlying slog.Logger.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// DebugMode returns the configured debug tier.
func (m *Manager) DebugMode() DebugMode {
	return m.debug
}

// RuleLevel returns the level rule log lines are emitted at.
func (m *Manager) RuleLevel() slog.Level {
	return m.ruleLevel
}

// Warn logs a warning unconditionally.
func (m *Manager) Warn(msg string, args ...any) {
	m.logger.Warn(msg, args...)
}

// Info logs an informational summary unconditionally.
func (m *Manager) Info(msg string, args ...any) {
	m.logger.Info(msg, args...)
}

// DebugLow logs when the debug mode is low or above.
func (m *Manager) DebugLow(msg string, args ...any) {
	m.debugAt(DebugLow, msg, args...)
}

// DebugMedium logs when the debug mode is medium or above.
func (m *Manager) DebugMedium(msg string, args ...any) {
	m.debugAt(DebugMedium, msg, args...)
}

// DebugHigh logs when the debug mode is high.
func (m *Manager) DebugHigh(msg string, args ...any) {
	m.debugAt(DebugHigh, msg, args...)
}

// DebugEnabled reports whether the given tier would emit.
func (m *Manager) DebugEnabled(tier DebugMode) bool {
	return tier != DebugOff && m.debug >= tier
}

// debugAt emits at Info level so debug output is visible without lowering
// the handler level; the tier is carried as an attribute.
func (m *Manager) debugAt(tier DebugMode, msg string, args ...any) {
	if !m.DebugEnabled(tier) {
		return
	}
	m.logger.Info(msg, append([]any{"debug", tier.String()}, args...)...)
}

// Rule writes a line to the rule log and mirrors it to the configured writer.
// A failing writer is reported as a warning; the line is never dropped from slog.
func (m *Manager) Rule(ctx context.Context, eventID, line string) {
	m.logger.Log(ctx, m.ruleLevel, line, "event", eventID)
	if m.writer == nil {
		return
	}
	if err := m.writer.WriteRuleLog(ctx, eventID, line); err != nil {
		m.logger.Warn("failed to persist rule log line", "event", eventID, "error", err)
	}
}
