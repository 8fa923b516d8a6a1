package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    full_name text NOT NULL,
    email text NOT NULL,
    password_hash text NOT NULL,
    role text NOT NULL,
    profile_pic text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_unique
ON users (LOWER(email));

CREATE TABLE IF NOT EXISTS connections (
    id uuid PRIMARY KEY,
    mentor_id uuid NOT NULL REFERENCES users(id),
    mentee_id uuid NOT NULL REFERENCES users(id),
    status text NOT NULL,
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS connections_mentor_idx ON connections (mentor_id);
CREATE INDEX IF NOT EXISTS connections_mentee_idx ON connections (mentee_id);

CREATE TABLE IF NOT EXISTS messages (
    id uuid PRIMARY KEY,
    seq bigserial,
    sender_id uuid NOT NULL REFERENCES users(id),
    receiver_id uuid NOT NULL REFERENCES users(id),
    connection_id uuid NOT NULL REFERENCES connections(id),
    text text NOT NULL DEFAULT '',
    image text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_pair_idx
ON messages (sender_id, receiver_id, seq);

CREATE TABLE IF NOT EXISTS activities (
    id uuid PRIMARY KEY,
    user_id uuid NOT NULL REFERENCES users(id),
    type text NOT NULL,
    meta jsonb,
    created_at timestamptz NOT NULL
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
