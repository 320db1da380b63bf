package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 1

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Extracted source-database schema objects (the metadata cache).
-- Written only by the extraction adapters, read by the context retriever.
CREATE TABLE IF NOT EXISTS schema_objects (
	obj_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT    NOT NULL,
	schema_name  TEXT    NOT NULL,
	obj_name     TEXT    NOT NULL,
	obj_type     TEXT    NOT NULL,
	ddl_script   TEXT    NOT NULL DEFAULT '',
	source_code  TEXT    NOT NULL DEFAULT '',
	extracted_at TEXT    NOT NULL,
	UNIQUE(project_name, schema_name, obj_name, obj_type)
);

CREATE INDEX IF NOT EXISTS idx_schema_objects_name ON schema_objects(project_name, obj_name);
CREATE INDEX IF NOT EXISTS idx_schema_objects_schema ON schema_objects(project_name, schema_name);

-- One row per unit of source SQL to migrate.
CREATE TABLE IF NOT EXISTS source_assets (
	asset_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name      TEXT    NOT NULL,
	file_name         TEXT    NOT NULL,
	file_path         TEXT    NOT NULL,
	sql_text          TEXT    NOT NULL,
	content_hash      TEXT    NOT NULL,
	parsed_schemas    TEXT    NOT NULL DEFAULT '',
	selected_for_port INTEGER NOT NULL DEFAULT 1,
	notes             TEXT    NOT NULL DEFAULT '',
	created_at        TEXT    NOT NULL,
	updated_at        TEXT    NOT NULL,
	UNIQUE(project_name, file_path)
);

-- The current migration result for one asset. Superseded outputs are
-- overwritten in place, never duplicated.
CREATE TABLE IF NOT EXISTS rendered_outputs (
	output_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT    NOT NULL,
	asset_id     INTEGER NOT NULL DEFAULT 0,
	file_name    TEXT    NOT NULL,
	file_path    TEXT    NOT NULL,
	sql_text     TEXT    NOT NULL DEFAULT '',
	content_hash TEXT    NOT NULL DEFAULT '',
	source_hash  TEXT    NOT NULL DEFAULT '',
	status       TEXT    NOT NULL DEFAULT '',
	verified     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT    NOT NULL DEFAULT '',
	updated_at   TEXT    NOT NULL,
	UNIQUE(project_name, file_path)
);

-- Per-asset progress record: the resumability anchor. The orchestrator
-- is the only writer of status and retry_count.
CREATE TABLE IF NOT EXISTS migration_logs (
	project_name        TEXT    NOT NULL,
	file_path           TEXT    NOT NULL,
	detected_schemas    TEXT    NOT NULL DEFAULT '',
	status              TEXT    NOT NULL,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	last_error_msg      TEXT    NOT NULL DEFAULT '',
	target_path         TEXT    NOT NULL DEFAULT '',
	skipped_statements  TEXT    NOT NULL DEFAULT '',
	executed_statements INTEGER NOT NULL DEFAULT 0,
	updated_at          TEXT    NOT NULL,
	UNIQUE(project_name, file_path)
);

CREATE INDEX IF NOT EXISTS idx_migration_logs_status ON migration_logs(project_name, status);

-- Append-only operational events shown by the status command.
CREATE TABLE IF NOT EXISTS execution_logs (
	log_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT NOT NULL,
	level        TEXT NOT NULL,
	event        TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
`,
}
