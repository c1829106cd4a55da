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
		Name:    "create live sessions and messages",
		SQL: `
			CREATE TABLE live_sessions (
				id          TEXT PRIMARY KEY,
				model       TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL DEFAULT (datetime('now')),
				ended_at    TEXT
			);

			CREATE INDEX idx_live_sessions_started ON live_sessions (started_at);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT (datetime('now')),
				FOREIGN KEY (session_id) REFERENCES live_sessions(id) ON DELETE CASCADE
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
			CREATE INDEX idx_messages_role ON messages (role, id);
		`,
	},
	{
		Version: 2,
		Name:    "index message content with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				content='messages',
				content_rowid='id'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
			END;

			CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
			END;
		`,
	},
}
