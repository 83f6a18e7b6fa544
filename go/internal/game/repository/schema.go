package repository

import (
	"context"
	"database/sql"

	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

// Schema defines the Postgres database structure.
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	id UUID PRIMARY KEY,
	white_user_id UUID NOT NULL,
	black_user_id UUID NOT NULL,
	white_time_left INTEGER NOT NULL,
	black_time_left INTEGER NOT NULL,
	active_side TEXT NOT NULL CHECK(active_side IN ('white', 'black')),
	board_position TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('active', 'paused', 'completed')),
	time_control TEXT NOT NULL,
	move_count INTEGER NOT NULL DEFAULT 0,
	draw_offered_by UUID,
	winner TEXT CHECK(winner IN ('white', 'black')),
	termination TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_games_white_user ON games(white_user_id) WHERE status != 'completed';
CREATE INDEX IF NOT EXISTS idx_games_black_user ON games(black_user_id) WHERE status != 'completed';

CREATE TABLE IF NOT EXISTS moves (
	game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	move_number INTEGER NOT NULL,
	side TEXT NOT NULL CHECK(side IN ('white', 'black')),
	notation TEXT NOT NULL,
	resulting_position TEXT NOT NULL,
	server_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, move_number)
);

CREATE TABLE IF NOT EXISTS friendships (
	user_id UUID NOT NULL,
	friend_id UUID NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'accepted', 'blocked')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, friend_id)
);

CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships(friend_id) WHERE status = 'accepted';
`

// EnsureSchema creates the tables if they do not exist yet. Runs in a
// transaction so a failed statement leaves nothing half-created.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, Schema)
		return err
	})
}
