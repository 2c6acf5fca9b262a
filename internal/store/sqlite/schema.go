package sqlite

import (
	"context"
	"fmt"
)

// schema is applied idempotently on startup.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	nickname      TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL DEFAULT '',
	is_group        BOOLEAN NOT NULL DEFAULT 0,
	avatar_url      TEXT NOT NULL DEFAULT '',
	direct_key      TEXT UNIQUE,
	last_message_id INTEGER REFERENCES messages(id),
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	user_id         INTEGER NOT NULL REFERENCES users(id),
	joined_at       DATETIME NOT NULL,
	PRIMARY KEY (conversation_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	sender_id       INTEGER NOT NULL REFERENCES users(id),
	content         TEXT NOT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read, sender_id);
CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`

// Migrate applies the schema. It is safe to run on every start.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
