// ABOUTME: Database schema definitions and migrations
// ABOUTME: Mirrors the platform's site, user, profile, and attribute tables plus sync bookkeeping
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS django_site (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS site_configuration_siteconfiguration (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL UNIQUE,
	enabled INTEGER NOT NULL DEFAULT 0,
	site_values TEXT NOT NULL DEFAULT '{}',
	FOREIGN KEY (site_id) REFERENCES django_site(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS auth_user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	date_joined DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_auth_user_date_joined ON auth_user(date_joined);
CREATE INDEX IF NOT EXISTS idx_auth_user_email ON auth_user(email);

CREATE TABLE IF NOT EXISTS auth_userprofile (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	meta TEXT NOT NULL DEFAULT '',
	state TEXT,
	country TEXT,
	gender TEXT,
	level_of_education TEXT,
	goals TEXT,
	bio TEXT,
	FOREIGN KEY (user_id) REFERENCES auth_user(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS student_userattribute (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(user_id, name),
	FOREIGN KEY (user_id) REFERENCES auth_user(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sync_state (
	service TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	last_run_id TEXT,
	last_synced_count INTEGER NOT NULL DEFAULT 0,
	status TEXT CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_batches (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	site_domain TEXT NOT NULL,
	batch_index INTEGER NOT NULL,
	contacts INTEGER NOT NULL,
	synced INTEGER NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_batches_run ON sync_batches(run_id, site_domain);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
