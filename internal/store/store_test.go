package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, ":memory:", db.Path())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentdesk.db")
	db, err := Open(path, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an existing database applies nothing new.
	db, err = Open(path, logging.Nop())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	var name string
	require.NoError(t, db.sql.QueryRow("SELECT name FROM schema_migrations WHERE version = 1").Scan(&name))
	assert.Equal(t, migrations[0].Name, name)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"discussion_turns", "agent_events", "turns_fts"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Turn store tests ---

func turnStores(t *testing.T) map[string]TurnStore {
	return map[string]TurnStore{
		"sqlite": NewSQLiteTurnStore(testDB(t)),
		"memory": NewMemoryTurnStore(),
	}
}

func TestTurnStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	for name, ts := range turnStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := ts.AppendTurn(ctx, domain.Turn{ExpertName: "Data Scientist", UserInput: "look at outliers", Response: "Three outliers found."})
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.False(t, first.CreatedAt.IsZero())

			_, err = ts.AppendTurn(ctx, domain.Turn{ExpertName: "Editor", Response: "Tightened the summary."})
			require.NoError(t, err)

			turns, err := ts.Turns(ctx)
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, first.ID, turns[0].ID)
			assert.Equal(t, "look at outliers", turns[0].UserInput)
			assert.Equal(t, "Editor", turns[1].ExpertName)
			assert.Empty(t, turns[1].UserInput)
		})
	}
}

func TestTurnStore_Clear(t *testing.T) {
	ctx := context.Background()
	for name, ts := range turnStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ts.AppendTurn(ctx, domain.Turn{ExpertName: "Editor", Response: "ok"})
			require.NoError(t, err)
			require.NoError(t, ts.ClearTurns(ctx))

			turns, err := ts.Turns(ctx)
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestTurnStore_Search(t *testing.T) {
	ctx := context.Background()
	for name, ts := range turnStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ts.AppendTurn(ctx, domain.Turn{ExpertName: "Data Scientist", Response: "The outliers cluster near zero."})
			require.NoError(t, err)
			_, err = ts.AppendTurn(ctx, domain.Turn{ExpertName: "Editor", Response: "Reworded the introduction."})
			require.NoError(t, err)

			found, err := ts.SearchTurns(ctx, "outliers", 0)
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "Data Scientist", found[0].ExpertName)

			found, err = ts.SearchTurns(ctx, "nonexistentword", 0)
			require.NoError(t, err)
			assert.Empty(t, found)
		})
	}
}

func TestSQLiteTurnStore_SearchAfterClear(t *testing.T) {
	ctx := context.Background()
	ts := NewSQLiteTurnStore(testDB(t))

	_, err := ts.AppendTurn(ctx, domain.Turn{ExpertName: "Analyst", Response: "quarterly revenue"})
	require.NoError(t, err)
	require.NoError(t, ts.ClearTurns(ctx))

	found, err := ts.SearchTurns(ctx, "revenue", 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteTurnStore_KeepsTimestamp(t *testing.T) {
	ctx := context.Background()
	ts := NewSQLiteTurnStore(testDB(t))

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	_, err := ts.AppendTurn(ctx, domain.Turn{ID: "fixed", ExpertName: "Analyst", Response: "r", CreatedAt: at})
	require.NoError(t, err)

	turns, err := ts.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "fixed", turns[0].ID)
	assert.True(t, at.Equal(turns[0].CreatedAt))
}

func TestSQLiteTurnStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	ts := NewSQLiteTurnStore(db)

	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO discussion_turns (id, expert_name, user_input, response, created_at)
		 VALUES ('bad', 'Analyst', '', 'r', 'yesterday')`)
	require.NoError(t, err)

	_, err = ts.Turns(ctx)
	assert.ErrorContains(t, err, "parsing created_at of turn bad")
}

// --- Agent events ---

func TestAgentEvents(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	require.NoError(t, db.RecordAgentEvent(ctx, EventAgentSaved, "Editor"))
	require.NoError(t, db.RecordAgentEvent(ctx, EventAgentDeleted, "Editor"))

	events, err := db.AgentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAgentDeleted, events[0].Kind)
	assert.Equal(t, EventAgentSaved, events[1].Kind)
	assert.Equal(t, "Editor", events[1].ExpertName)

	events, err = db.AgentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAgentEvents_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO agent_events (kind, expert_name, created_at) VALUES ('saved', 'Editor', 'soon')`)
	require.NoError(t, err)

	_, err = db.AgentEvents(ctx, 0)
	assert.ErrorContains(t, err, "parsing created_at of agent event")
}
