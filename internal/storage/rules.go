package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/types"
)

// RuleStore keeps the ordered rule list in the rules table. Position is
// the rule's index in the list.
type RuleStore struct {
	db *sql.DB
}

// NewRuleStore returns a rules.Store backed by db.
func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

var _ rules.Store = (*RuleStore)(nil)

// Rules returns the rules in position order.
func (s *RuleStore) Rules(ctx context.Context) ([]types.Rule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, patterns, color FROM rules ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var result []types.Rule
	for rows.Next() {
		var r types.Rule
		var patterns, color string
		if err := rows.Scan(&r.Name, &patterns, &color); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := json.Unmarshal([]byte(patterns), &r.Patterns); err != nil {
			return nil, fmt.Errorf("decode patterns of %q: %w", r.Name, err)
		}
		r.Color = types.Color(color)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return result, nil
}

// SetRules replaces the whole list in one transaction.
func (s *RuleStore) SetRules(ctx context.Context, list []types.Rule) error {
	if err := rules.ValidateAll(list); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for i, r := range list {
		patterns, err := json.Marshal(r.Patterns)
		if err != nil {
			return fmt.Errorf("encode patterns of %q: %w", r.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rules (position, name, patterns, color) VALUES (?, ?, ?, ?)",
			i, r.Name, string(patterns), string(r.Color.OrDefault()),
		); err != nil {
			return fmt.Errorf("insert rule %q: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	applog.Info("rules.saved", "store", "sqlite", "count", len(list))
	return nil
}
