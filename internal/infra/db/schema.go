package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	tg_user_id BIGINT NOT NULL UNIQUE,
	locale TEXT NOT NULL DEFAULT 'ru-RU',
	tz TEXT,
	first_name TEXT,
	username TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS channels (
	id BIGSERIAL PRIMARY KEY,
	tg_chat_id BIGINT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	username TEXT,
	owner_id BIGINT NOT NULL REFERENCES users(id),
	tz TEXT NOT NULL DEFAULT 'UTC',
	bot_token TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS channel_admins (
	channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (channel_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	author_id BIGINT NOT NULL REFERENCES users(id),
	status TEXT NOT NULL,
	blocks_json JSONB NOT NULL DEFAULT '[]',
	delivered_ids BIGINT[] NOT NULL DEFAULT '{}',
	fail_reason TEXT,
	scheduled_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS posts_author_status_idx ON posts (author_id, status)`,
	`CREATE TABLE IF NOT EXISTS schedule_entries (
	post_id BIGINT PRIMARY KEY REFERENCES posts(id) ON DELETE CASCADE,
	due_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS schedule_entries_due_idx ON schedule_entries (status, due_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_jobs (
	job_id TEXT PRIMARY KEY,
	attempts INT NOT NULL DEFAULT 0,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	event TEXT NOT NULL,
	user_id BIGINT,
	channel_id BIGINT,
	post_id BIGINT,
	metadata JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// EnsureSchema создаёт недостающие таблицы. Выражения идемпотентны, поэтому
// вызов безопасен при каждом старте сервиса.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("применить схему: %w", err)
		}
	}
	return nil
}
