package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// TurnStore persists discussion turns in append order.
type TurnStore interface {
	AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error)
	Turns(ctx context.Context) ([]domain.Turn, error)
	ClearTurns(ctx context.Context) error
	SearchTurns(ctx context.Context, query string, limit int) ([]domain.Turn, error)
}

// prepareTurn fills in the ID and timestamp of a new turn.
func prepareTurn(turn domain.Turn) domain.Turn {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	return turn
}

// SQLiteTurnStore keeps turns in the discussion_turns table with an FTS5
// index over expert names and responses.
type SQLiteTurnStore struct {
	db *DB
}

// NewSQLiteTurnStore creates a turn store using the given database.
func NewSQLiteTurnStore(db *DB) *SQLiteTurnStore {
	return &SQLiteTurnStore{db: db}
}

// AppendTurn inserts a turn, assigning an ID and timestamp when unset.
func (s *SQLiteTurnStore) AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error) {
	turn = prepareTurn(turn)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO discussion_turns (id, expert_name, user_input, response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.ExpertName, turn.UserInput, turn.Response,
		turn.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return turn, fmt.Errorf("inserting turn: %w", err)
	}
	return turn, nil
}

// Turns returns every stored turn, oldest first.
func (s *SQLiteTurnStore) Turns(ctx context.Context) ([]domain.Turn, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, expert_name, user_input, response, created_at
		 FROM discussion_turns ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// ClearTurns deletes the whole history.
func (s *SQLiteTurnStore) ClearTurns(ctx context.Context) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM discussion_turns`); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	return nil
}

// SearchTurns runs an FTS5 match over expert names and responses, best
// matches first. Limit of 0 defaults to 20.
func (s *SQLiteTurnStore) SearchTurns(ctx context.Context, query string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT t.id, t.expert_name, t.user_input, t.response, t.created_at
		 FROM turns_fts
		 JOIN discussion_turns t ON t.seq = turns_fts.rowid
		 WHERE turns_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]domain.Turn, error) {
	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ExpertName, &t.UserInput, &t.Response, &createdAt); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.DateTime, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at of turn %s: %w", t.ID, err)
		}
		t.CreatedAt = at
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// MemoryTurnStore is a TurnStore that lives only as long as the process.
type MemoryTurnStore struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// NewMemoryTurnStore returns an empty in-memory store.
func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{}
}

func (m *MemoryTurnStore) AppendTurn(_ context.Context, turn domain.Turn) (domain.Turn, error) {
	turn = prepareTurn(turn)
	m.mu.Lock()
	m.turns = append(m.turns, turn)
	m.mu.Unlock()
	return turn, nil
}

func (m *MemoryTurnStore) Turns(_ context.Context) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Turn, len(m.turns))
	copy(out, m.turns)
	return out, nil
}

func (m *MemoryTurnStore) ClearTurns(_ context.Context) error {
	m.mu.Lock()
	m.turns = nil
	m.mu.Unlock()
	return nil
}

// SearchTurns does a case-insensitive substring match, newest first.
func (m *MemoryTurnStore) SearchTurns(_ context.Context, query string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Turn
	for i := len(m.turns) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.turns[i]
		if strings.Contains(strings.ToLower(t.Response), q) || strings.Contains(strings.ToLower(t.ExpertName), q) {
			out = append(out, t)
		}
	}
	return out, nil
}
