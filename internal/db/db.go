package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error { return d.Conn.Close() }

// AutoMigrate creates the schema if it does not exist yet. Statements are
// idempotent so it is safe to run on every start.
func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        username VARCHAR(50) UNIQUE NOT NULL,
        email VARCHAR(255) UNIQUE,
        password VARCHAR(255) NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,

	`CREATE TABLE IF NOT EXISTS playbooks (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        title TEXT NOT NULL,
        content JSONB NOT NULL DEFAULT '{}'::jsonb,
        description TEXT NOT NULL DEFAULT '',
        tags TEXT[] NOT NULL DEFAULT '{}',
        category TEXT NOT NULL DEFAULT '',
        is_public BOOLEAN NOT NULL DEFAULT false,
        is_marketplace BOOLEAN NOT NULL DEFAULT false,
        price DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (price >= 0),
        purchase_count INT NOT NULL DEFAULT 0,
        rating DOUBLE PRECISION NOT NULL DEFAULT 0,
        rating_count INT NOT NULL DEFAULT 0,
        owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS playbooks_marketplace_idx ON playbooks (is_marketplace, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS collaborators (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        permission VARCHAR(10) NOT NULL CHECK (permission IN ('owner', 'edit', 'view')),
        status VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'accepted')) DEFAULT 'pending',
        invited_by UUID REFERENCES users(id) ON DELETE SET NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (playbook_id, user_id)
    )`,

	`CREATE TABLE IF NOT EXISTS invitations (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        email VARCHAR(255) NOT NULL,
        permission VARCHAR(10) NOT NULL CHECK (permission IN ('edit', 'view')),
        token VARCHAR(64) UNIQUE NOT NULL,
        invited_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        expires_at TIMESTAMPTZ NOT NULL,
        accepted_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        message TEXT NOT NULL,
        edited_at TIMESTAMPTZ,
        is_deleted BOOLEAN NOT NULL DEFAULT false,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS chat_messages_playbook_idx ON chat_messages (playbook_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS assignments (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        region TEXT NOT NULL DEFAULT '',
        title TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        due_date TIMESTAMPTZ,
        color VARCHAR(7) NOT NULL DEFAULT '#3b82f6',
        status VARCHAR(12) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled')) DEFAULT 'pending',
        created_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS assignment_assignees (
        assignment_id UUID NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        PRIMARY KEY (assignment_id, user_id)
    )`,
	`CREATE TABLE IF NOT EXISTS assignment_comments (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        assignment_id UUID NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        body TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        assignment_id UUID REFERENCES assignments(id) ON DELETE CASCADE,
        kind VARCHAR(20) NOT NULL,
        body TEXT NOT NULL,
        read BOOLEAN NOT NULL DEFAULT false,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,

	`CREATE TABLE IF NOT EXISTS favorites (
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (user_id, playbook_id)
    )`,
	`CREATE TABLE IF NOT EXISTS purchases (
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (user_id, playbook_id)
    )`,
	`CREATE TABLE IF NOT EXISTS ratings (
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (user_id, playbook_id)
    )`,

	`CREATE TABLE IF NOT EXISTS internal_pages (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        playbook_id UUID NOT NULL REFERENCES playbooks(id) ON DELETE CASCADE,
        title TEXT NOT NULL,
        content JSONB NOT NULL DEFAULT '{}'::jsonb,
        created_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS internal_page_permissions (
        page_id UUID NOT NULL REFERENCES internal_pages(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        permission VARCHAR(10) NOT NULL CHECK (permission IN ('edit', 'view')),
        PRIMARY KEY (page_id, user_id)
    )`,
}
