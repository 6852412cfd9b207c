package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS folder_state (
	source_account TEXT NOT NULL,
	source_folder  TEXT NOT NULL,
	dest_folder    TEXT NOT NULL,
	checkpoint     TEXT NOT NULL DEFAULT '',
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source_account, source_folder, dest_folder)
);

CREATE TABLE IF NOT EXISTS item_state (
	source_account TEXT NOT NULL,
	source_folder  TEXT NOT NULL,
	dest_folder    TEXT NOT NULL,
	uid            TEXT NOT NULL,
	fingerprint    TEXT NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source_account, source_folder, dest_folder, uid)
);

CREATE INDEX IF NOT EXISTS idx_item_state_folder
	ON item_state(source_account, source_folder, dest_folder);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
