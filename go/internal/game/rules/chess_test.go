package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestValidateAndApply(t *testing.T) {
	v := NewChessValidator()

	t.Run("accepts a legal UCI move from the starting position", func(t *testing.T) {
		result, err := v.ValidateAndApply(models.StartingFEN, MoveRequest{From: "e2", To: "e4"})
		require.NoError(t, err)
		assert.Equal(t, "e4", result.SAN)
		assert.Equal(t, models.SideBlack, result.NextTurn)
		assert.True(t, strings.HasPrefix(result.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"))
		assert.False(t, result.GameOver)
	})

	t.Run("accepts SAN notation as a fallback", func(t *testing.T) {
		result, err := v.ValidateAndApply(models.StartingFEN, MoveRequest{Notation: "Nf3"})
		require.NoError(t, err)
		assert.Equal(t, "Nf3", result.SAN)
		assert.Equal(t, models.SideBlack, result.NextTurn)
	})

	t.Run("treats an empty position as the starting position", func(t *testing.T) {
		result, err := v.ValidateAndApply("", MoveRequest{From: "d2", To: "d4"})
		require.NoError(t, err)
		assert.Equal(t, "d4", result.SAN)
	})

	t.Run("rejects an illegal move", func(t *testing.T) {
		_, err := v.ValidateAndApply(models.StartingFEN, MoveRequest{From: "e2", To: "e5"})
		assert.ErrorIs(t, err, ErrInvalidMove)
	})

	t.Run("rejects a move with no coordinates and no notation", func(t *testing.T) {
		_, err := v.ValidateAndApply(models.StartingFEN, MoveRequest{})
		assert.ErrorIs(t, err, ErrInvalidMove)
	})

	t.Run("rejects a garbage position", func(t *testing.T) {
		_, err := v.ValidateAndApply("not a fen", MoveRequest{From: "e2", To: "e4"})
		assert.Error(t, err)
	})

	t.Run("detects checkmate", func(t *testing.T) {
		// Fool's mate: after 1.f3 e5 2.g4 the black queen mates on h4.
		fen := "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq - 0 2"
		result, err := v.ValidateAndApply(fen, MoveRequest{From: "d8", To: "h4"})
		require.NoError(t, err)
		assert.True(t, result.GameOver)
		require.NotNil(t, result.Winner)
		assert.Equal(t, models.SideBlack, *result.Winner)
		assert.Equal(t, models.TerminationCheckmate, result.Reason)
	})

	t.Run("detects stalemate", func(t *testing.T) {
		fen := "k7/8/8/8/8/1Q6/8/7K w - - 0 1"
		result, err := v.ValidateAndApply(fen, MoveRequest{From: "b3", To: "b6"})
		require.NoError(t, err)
		assert.True(t, result.GameOver)
		assert.Nil(t, result.Winner)
		assert.Equal(t, models.TerminationStalemate, result.Reason)
	})

	t.Run("handles promotion", func(t *testing.T) {
		fen := "8/P7/8/8/8/8/7k/K7 w - - 0 1"
		result, err := v.ValidateAndApply(fen, MoveRequest{From: "a7", To: "a8", Promotion: "q"})
		require.NoError(t, err)
		assert.Equal(t, "a8=Q", result.SAN)
	})
}
