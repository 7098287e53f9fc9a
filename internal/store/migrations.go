package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create discussion turns",
		SQL: `
			CREATE TABLE discussion_turns (
				seq          INTEGER PRIMARY KEY AUTOINCREMENT,
				id           TEXT NOT NULL UNIQUE,
				expert_name  TEXT NOT NULL,
				user_input   TEXT NOT NULL DEFAULT '',
				response     TEXT NOT NULL,
				created_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_turns_expert ON discussion_turns (expert_name);
		`,
	},
	{
		Version: 2,
		Name:    "create agent events",
		SQL: `
			CREATE TABLE agent_events (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				kind         TEXT NOT NULL,
				expert_name  TEXT NOT NULL,
				created_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "index discussion turns with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE turns_fts USING fts5(
				expert_name,
				response,
				content='discussion_turns',
				content_rowid='seq'
			);

			CREATE TRIGGER turns_ai AFTER INSERT ON discussion_turns BEGIN
				INSERT INTO turns_fts(rowid, expert_name, response)
				VALUES (new.seq, new.expert_name, new.response);
			END;

			CREATE TRIGGER turns_ad AFTER DELETE ON discussion_turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, expert_name, response)
				VALUES ('delete', old.seq, old.expert_name, old.response);
			END;
		`,
	},
}
