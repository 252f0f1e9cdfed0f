package store

import "database/sql"

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "0001_init",
		sql: `
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	collapsed INTEGER NOT NULL DEFAULT 0,
	owner_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	shell TEXT NOT NULL,
	cwd TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_accessed_at DATETIME NOT NULL,
	owner_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	cols INTEGER NOT NULL,
	rows INTEGER NOT NULL,
	external_mux_handle TEXT NOT NULL DEFAULT '',
	category_id TEXT REFERENCES categories(id),
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scrollback (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS session_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id TEXT PRIMARY KEY,
	browser_enabled INTEGER NOT NULL DEFAULT 1,
	visual_enabled INTEGER NOT NULL DEFAULT 1,
	notify_on_input INTEGER NOT NULL DEFAULT 1,
	notify_on_completed INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);
`,
	},
}

// applyMigrations runs every migration not yet recorded in the migrations
// table, in order, each inside its own transaction.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return err
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow(`SELECT COUNT(1) FROM migrations WHERE name = ?`, m.name).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO migrations (name, applied_at) VALUES (?, datetime('now'))`, m.name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
