package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'gestor', 'doador', 'solicitante', 'distribuidor', 'armazenador')),
    name          TEXT,
    address       TEXT,
    neighborhood  TEXT,
    city          TEXT,
    state         TEXT,
    postal_code   TEXT,
    lat           REAL,
    lng           REAL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    category    TEXT NOT NULL,
    condition   TEXT NOT NULL CHECK (condition IN ('novo', 'bom', 'precisa_reparo')),
    description TEXT,
    photo       BLOB,
    photo_mime  TEXT,
    status      TEXT NOT NULL DEFAULT 'disponivel'
                CHECK (status IN ('disponivel', 'aguardando_coleta', 'em_transito', 'em_uso', 'manutencao')),
    holder_id   INTEGER NOT NULL REFERENCES users(id),
    donor_id    INTEGER NOT NULL REFERENCES users(id),
    version     INTEGER NOT NULL DEFAULT 1,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    deleted_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_items_category_status ON items(category, status);

CREATE TABLE IF NOT EXISTS requests (
    id              INTEGER PRIMARY KEY,
    requester_id    INTEGER NOT NULL REFERENCES users(id),
    category_needed TEXT NOT NULL,
    urgency_level   INTEGER NOT NULL,
    notes           TEXT,
    status          TEXT NOT NULL DEFAULT 'pendente' CHECK (status IN ('pendente', 'atendido', 'cancelado')),
    matched_item_id INTEGER REFERENCES items(id),
    version         INTEGER NOT NULL DEFAULT 1,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    CHECK ((status = 'atendido') = (matched_item_id IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_requests_category_status ON requests(category_needed, status);

CREATE TABLE IF NOT EXISTS matches (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL REFERENCES items(id),
    request_id INTEGER NOT NULL UNIQUE REFERENCES requests(id),
    created_at DATETIME NOT NULL
);

CREATE TRIGGER IF NOT EXISTS trg_matches_immutable_update
    BEFORE UPDATE ON matches
    BEGIN SELECT RAISE(ABORT, 'matches are immutable'); END;

CREATE TRIGGER IF NOT EXISTS trg_matches_immutable_delete
    BEFORE DELETE ON matches
    BEGIN SELECT RAISE(ABORT, 'matches are immutable'); END;

CREATE TABLE IF NOT EXISTS missions (
    id             INTEGER PRIMARY KEY,
    match_id       INTEGER NOT NULL UNIQUE REFERENCES matches(id),
    item_id        INTEGER NOT NULL REFERENCES items(id),
    origin_id      INTEGER NOT NULL REFERENCES users(id),
    destination_id INTEGER NOT NULL REFERENCES users(id),
    distributor_id INTEGER REFERENCES users(id),
    status         TEXT NOT NULL DEFAULT 'pendente'
                   CHECK (status IN ('pendente', 'aceita', 'em_rota', 'concluida', 'cancelada')),
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS custody_events (
    id             INTEGER PRIMARY KEY,
    item_id        INTEGER NOT NULL REFERENCES items(id),
    from_status    TEXT NOT NULL,
    to_status      TEXT NOT NULL,
    from_holder_id INTEGER NOT NULL REFERENCES users(id),
    to_holder_id   INTEGER NOT NULL REFERENCES users(id),
    actor_id       INTEGER,
    notes          TEXT,
    occurred_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: index for the per-item custody history.
	`CREATE INDEX IF NOT EXISTS idx_custody_events_item ON custody_events(item_id, occurred_at)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist and
// applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
