package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chainfilter/internal/event"
)

// EventRecord is the stored outcome of one executed event.
type EventRecord struct {
	ID        string `db:"id" json:"id"`
	Seq       int64  `db:"seq" json:"seq"`
	Chain     string `db:"chain" json:"chain"`
	Player    string `db:"player" json:"player"`
	Listener  string `db:"listener" json:"listener"`
	Original  string `db:"original" json:"original"`
	Message   string `db:"message" json:"message"`
	Pattern   string `db:"pattern" json:"pattern,omitempty"` // empty when no rule matched
	Cancelled bool   `db:"cancelled" json:"cancelled"`
	Stopped   bool   `db:"stopped" json:"stopped"`
	Logged    bool   `db:"logged" json:"logged"`
}

// NewEventRecord captures the outcome of st after chain executed.
// Seq is assigned by WriteEvent.
func NewEventRecord(chain string, st *event.State) EventRecord {
	rec := EventRecord{
		ID:        st.ID,
		Chain:     chain,
		Player:    st.PlayerName,
		Listener:  st.ListenerName(),
		Original:  st.Original.Colored(),
		Message:   st.Message.Colored(),
		Cancelled: st.Cancel,
		Stopped:   st.Stop,
		Logged:    st.Log,
	}
	if st.Pattern != nil {
		rec.Pattern = strings.TrimPrefix(st.Pattern.String(), "(?i)")
	}
	return rec
}

// Matched reports whether any rule matched the event.
func (r EventRecord) Matched() bool {
	return r.Pattern != ""
}

// WriteEvent inserts an event record, assigning the next seq.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events
		(id, seq, chain, player, listener, original, message, pattern, cancelled, stopped, logged)
		VALUES (
			:id,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM events),
			:chain, :player, :listener, :original, :message, :pattern,
			:cancelled, :stopped, :logged
		)
		ON CONFLICT(id) DO NOTHING
	`, rec)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ListOptions filters ListEvents.
type ListOptions struct {
	// Chain restricts results to one chain. Empty means all chains.
	Chain string

	// Limit keeps only the most recent events. Zero or less means no limit.
	Limit int
}

// ListEvents returns events in seq order, oldest first.
// With a limit, the newest Limit events are returned, still oldest first.
func (s *Store) ListEvents(ctx context.Context, opts ListOptions) ([]EventRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}

	var records []EventRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM (
			SELECT id, seq, chain, player, listener, original, message, pattern, cancelled, stopped, logged
			FROM events
			WHERE ? = '' OR chain = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, opts.Chain, opts.Chain, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return records, nil
}

// GetEvent returns the event with the given ID.
func (s *Store) GetEvent(ctx context.Context, id string) (EventRecord, error) {
	var rec EventRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT id, seq, chain, player, listener, original, message, pattern, cancelled, stopped, logged
		FROM events
		WHERE id = ?
	`, id)
	if err != nil {
		return EventRecord{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return rec, nil
}

// WriteRuleLog appends a rule log line for an event.
//
// Implements logging.RuleLogWriter.
func (s *Store) WriteRuleLog(ctx context.Context, eventID, line string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rule_log (event_id, line) VALUES (?, ?)`, eventID, line)
	if err != nil {
		return fmt.Errorf("write rule log: %w", err)
	}
	return nil
}

// ReadRuleLog returns an event's rule log lines in emission order.
func (s *Store) ReadRuleLog(ctx context.Context, eventID string) ([]string, error) {
	var lines []string
	err := s.db.SelectContext(ctx, &lines, `
		SELECT line FROM rule_log
		WHERE event_id = ?
		ORDER BY id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read rule log: %w", err)
	}
	return lines, nil
}
