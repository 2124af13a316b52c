package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_rooms (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT,
            chat_type TEXT NOT NULL DEFAULT 'general',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            is_public BOOLEAN NOT NULL DEFAULT TRUE,
            max_members INT,
            is_moderated BOOLEAN NOT NULL DEFAULT FALSE,
            created_by_id INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS chat_memberships (
            id SERIAL PRIMARY KEY,
            room_id INT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            is_moderator BOOLEAN NOT NULL DEFAULT FALSE,
            can_post BOOLEAN NOT NULL DEFAULT TRUE,
            notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_read_at TIMESTAMPTZ,
            UNIQUE(room_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id SERIAL PRIMARY KEY,
            room_id INT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text',
            content TEXT NOT NULL,
            file_url TEXT,
            reply_to_id INT REFERENCES chat_messages(id),
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
            is_approved BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
            id SERIAL PRIMARY KEY,
            message_id INT NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            emoji TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(message_id, user_id, emoji)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_memberships_user ON chat_memberships(user_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
