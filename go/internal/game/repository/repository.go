package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

// Repository is the durable copy of game state. Live play runs against the
// in-memory session store; rows here exist for crash recovery, reconnection
// hydration and history.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const gameColumns = `id, white_user_id, black_user_id, white_time_left, black_time_left,
		active_side, board_position, status, time_control, move_count,
		draw_offered_by, winner, termination, created_at, updated_at`

// GetGame loads one game row, or session.ErrGameNotFound.
func (r *Repository) GetGame(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, gameID)
	game, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game %s: %w", gameID, err)
	}
	return game, nil
}

// ListActiveGames returns all games whose status is active or paused. Used
// at startup to rebuild live state and restart timers.
func (r *Repository) ListActiveGames(ctx context.Context) ([]*models.GameSession, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE status IN ($1, $2) ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, models.GameStatusActive, models.GameStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("failed to list active games: %w", err)
	}
	defer rows.Close()

	var games []*models.GameSession
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

// FindActiveGame returns the non-terminal game the user participates in, or
// session.ErrGameNotFound.
func (r *Repository) FindActiveGame(ctx context.Context, userID uuid.UUID) (*models.GameSession, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE (white_user_id = $1 OR black_user_id = $1) AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID, models.GameStatusActive, models.GameStatusPaused)
	game, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active game for user %s: %w", userID, err)
	}
	return game, nil
}

// PersistGameTiming checkpoints the fields that change during live play.
func (r *Repository) PersistGameTiming(ctx context.Context, game *models.GameSession) error {
	query := `
		UPDATE games
		SET white_time_left = $2, black_time_left = $3, active_side = $4,
			board_position = $5, status = $6, move_count = $7,
			draw_offered_by = $8, updated_at = $9
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		game.ID, game.WhiteTimeLeft, game.BlackTimeLeft, game.ActiveSide,
		game.BoardPosition, game.Status, game.MoveCount,
		sqlutil.ToNullUUID(game.DrawOfferedBy), game.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist game timing for %s: %w", game.ID, err)
	}
	return nil
}

// CompleteGame writes the terminal state of a finished game.
func (r *Repository) CompleteGame(ctx context.Context, game *models.GameSession) error {
	query := `
		UPDATE games
		SET white_time_left = $2, black_time_left = $3, status = $4,
			board_position = $5, move_count = $6, winner = $7, termination = $8,
			draw_offered_by = NULL, updated_at = $9
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		game.ID, game.WhiteTimeLeft, game.BlackTimeLeft, game.Status,
		game.BoardPosition, game.MoveCount,
		sqlutil.ToNullString(game.Winner), sqlutil.ToNullString(game.Termination), game.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete game %s: %w", game.ID, err)
	}
	return nil
}

// AppendMove records one move of a game.
func (r *Repository) AppendMove(ctx context.Context, move *models.Move) error {
	query := `
		INSERT INTO moves (game_id, move_number, side, notation, resulting_position, server_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, move_number) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		move.GameID, move.MoveNumber, move.Side, move.Notation,
		move.ResultingPosition, move.ServerTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append move %d for game %s: %w", move.MoveNumber, move.GameID, err)
	}
	return nil
}

// ListMoves returns all moves of a game ordered by move number.
func (r *Repository) ListMoves(ctx context.Context, gameID uuid.UUID) ([]models.Move, error) {
	query := `
		SELECT game_id, move_number, side, notation, resulting_position, server_timestamp
		FROM moves WHERE game_id = $1 ORDER BY move_number`

	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moves for game %s: %w", gameID, err)
	}
	defer rows.Close()

	var moves []models.Move
	for rows.Next() {
		var m models.Move
		if err := rows.Scan(&m.GameID, &m.MoveNumber, &m.Side, &m.Notation, &m.ResultingPosition, &m.ServerTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// ListFriendIDs returns the user ids of all accepted friends, regardless of
// which side initiated the friendship.
func (r *Repository) ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END
		FROM friendships
		WHERE (user_id = $1 OR friend_id = $1) AND status = $2`

	rows, err := r.db.QueryContext(ctx, query, userID, models.FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends for user %s: %w", userID, err)
	}
	defer rows.Close()

	var friendIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		friendIDs = append(friendIDs, id)
	}
	return friendIDs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*models.GameSession, error) {
	var (
		game          models.GameSession
		drawOfferedBy uuid.NullUUID
		winner        sql.NullString
		termination   sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
	)
	err := row.Scan(
		&game.ID, &game.WhiteUserID, &game.BlackUserID,
		&game.WhiteTimeLeft, &game.BlackTimeLeft,
		&game.ActiveSide, &game.BoardPosition, &game.Status, &game.TimeControl,
		&game.MoveCount, &drawOfferedBy, &winner, &termination,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	game.DrawOfferedBy = sqlutil.FromNullUUID(drawOfferedBy)
	game.Winner = sqlutil.FromNullString[models.Side](winner)
	game.Termination = sqlutil.FromNullString[models.TerminationReason](termination)
	game.CreatedAt = createdAt
	game.UpdatedAt = updatedAt
	return &game, nil
}
