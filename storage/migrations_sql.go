package storage

var sqliteMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS persona_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persona_subject (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			external_id TEXT NOT NULL UNIQUE,
			date_created TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persona_fact (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			subject_id INTEGER NOT NULL REFERENCES persona_subject(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL,
			source_statement TEXT NOT NULL,
			revision INTEGER NOT NULL DEFAULT 1,
			date_created TIMESTAMP NOT NULL,
			date_updated TIMESTAMP NOT NULL,
			UNIQUE (subject_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persona_fact_subject
			ON persona_fact (subject_id, id)`,
		`CREATE TABLE IF NOT EXISTS persona_fact_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			subject_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			op TEXT NOT NULL,
			value TEXT,
			confidence REAL,
			source_statement TEXT,
			revision INTEGER,
			date_created TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persona_fact_audit_subject
			ON persona_fact_audit (subject_id, id)`,
	},
}

var postgresMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS persona_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persona_subject (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			external_id TEXT NOT NULL UNIQUE,
			date_created TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persona_fact (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			subject_id BIGINT NOT NULL REFERENCES persona_subject(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source_statement TEXT NOT NULL,
			revision BIGINT NOT NULL DEFAULT 1,
			date_created TIMESTAMPTZ NOT NULL,
			date_updated TIMESTAMPTZ NOT NULL,
			UNIQUE (subject_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persona_fact_subject
			ON persona_fact (subject_id, id)`,
		`CREATE TABLE IF NOT EXISTS persona_fact_audit (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			subject_id BIGINT NOT NULL,
			key TEXT NOT NULL,
			op TEXT NOT NULL,
			value TEXT,
			confidence DOUBLE PRECISION,
			source_statement TEXT,
			revision BIGINT,
			date_created TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persona_fact_audit_subject
			ON persona_fact_audit (subject_id, id)`,
	},
}
