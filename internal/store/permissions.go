package store

import (
	"context"
	"fmt"
)

// ReplacePermissions stores perms as the complete interest set of chain,
// discarding whatever was stored for it before.
func (s *Store) ReplacePermissions(ctx context.Context, chain string, perms []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE chain = ?`, chain); err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}
	for _, p := range perms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (chain, permission) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, chain, p)
		if err != nil {
			return fmt.Errorf("replace permissions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}
	return nil
}

// ListPermissions returns the stored interest set of chain, sorted.
// An empty chain returns the union over every chain.
func (s *Store) ListPermissions(ctx context.Context, chain string) ([]string, error) {
	var perms []string
	err := s.db.SelectContext(ctx, &perms, `
		SELECT DISTINCT permission FROM permissions
		WHERE ? = '' OR chain = ?
		ORDER BY permission COLLATE BINARY ASC
	`, chain, chain)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}
