package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Agent event kinds.
const (
	EventAgentSaved   = "saved"
	EventAgentDeleted = "deleted"
)

// RecordAgentEvent appends an entry to the agent_events audit trail.
func (db *DB) RecordAgentEvent(ctx context.Context, kind, expertName string) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO agent_events (kind, expert_name, created_at) VALUES (?, ?, ?)`,
		kind, expertName, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("recording agent event: %w", err)
	}
	return nil
}

// AgentEvents returns the most recent audit entries, newest first.
// Limit of 0 defaults to 50.
func (db *DB) AgentEvents(ctx context.Context, limit int) ([]domain.AgentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, kind, expert_name, created_at FROM agent_events
		 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying agent events: %w", err)
	}
	defer rows.Close()

	var events []domain.AgentEvent
	for rows.Next() {
		var e domain.AgentEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.ExpertName, &createdAt); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.DateTime, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at of agent event %d: %w", e.ID, err)
		}
		e.CreatedAt = at
		events = append(events, e)
	}
	return events, rows.Err()
}
