// Package event holds the per-event mutable state threaded through a rule chain.
//
// A State is created by the host for exactly one incoming message, passed by
// pointer into every chain entry, and discarded once the chain has executed.
// It is never shared between concurrent traversals.
package event

import "regexp"

// Listener identifies the host component that produced the event
// (chat, sign, book, command...).
type Listener interface {
	ShortName() string
}

// ListenerName is a Listener backed by a plain string.
type ListenerName string

// ShortName implements Listener.
func (l ListenerName) ShortName() string {
	return string(l)
}

// Authorizer answers permission checks for rule conditions.
// Implemented by permcache.Cache.
type Authorizer interface {
	Has(player, permission string) bool
}

// State is the accumulator for one event's trip through a chain.
type State struct {
	// ID correlates log lines and stored records for this event.
	ID string

	// Original is the message as received. It is never modified.
	Original Message

	// Message is the current, possibly rewritten, message.
	Message Message

	PlayerName string
	Listener   Listener

	// Authorizer backs permission conditions. Nil means every check fails.
	Authorizer Authorizer

	// Stop halts traversal of the current chain and every enclosing chain.
	Stop bool

	// Cancel tells the host to drop the message.
	Cancel bool

	// Log routes drained log messages to the rule log instead of the debug log.
	Log bool

	// Pattern is the pattern of the last rule that matched, nil if none did.
	Pattern *regexp.Regexp

	// Responses are messages the host should send back to the player.
	Responses []string

	logMessages []string
}

// NewState creates the state for a single incoming message.
func NewState(id, player string, listener Listener, text string) *State {
	msg := NewMessage(text)
	return &State{
		ID:         id,
		Original:   msg,
		Message:    msg,
		PlayerName: player,
		Listener:   listener,
	}
}

// ListenerName returns the listener's short name, or "" when unset.
func (s *State) ListenerName() string {
	if s.Listener == nil {
		return ""
	}
	return s.Listener.ShortName()
}

// AddLogMessage appends a line to the event's log accumulator.
func (s *State) AddLogMessage(msg string) {
	s.logMessages = append(s.logMessages, msg)
}

// LogMessages drains the accumulator, returning lines in insertion order.
func (s *State) LogMessages() []string {
	msgs := s.logMessages
	s.logMessages = nil
	return msgs
}

// PendingLogMessages returns the number of undrained log lines.
func (s *State) PendingLogMessages() int {
	return len(s.logMessages)
}

// Respond queues a message for the player.
func (s *State) Respond(msg string) {
	s.Responses = append(s.Responses, msg)
}

// HasPermission checks a permission for the event's player.
func (s *State) HasPermission(permission string) bool {
	if s.Authorizer == nil {
		return false
	}
	return s.Authorizer.Has(s.PlayerName, permission)
}

// Modified reports whether the message differs from the original.
func (s *State) Modified() bool {
	return !s.Message.Equal(s.Original)
}
