package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/mcdev12/gambit/go/internal/models"
)

// ChessValidator validates moves with the corentings/chess engine.
type ChessValidator struct{}

// NewChessValidator returns a Validator backed by corentings/chess.
func NewChessValidator() *ChessValidator {
	return &ChessValidator{}
}

// ValidateAndApply implements Validator.
func (v *ChessValidator) ValidateAndApply(position string, move MoveRequest) (*Result, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return nil, fmt.Errorf("reconstruct position: %w", err)
	}

	pos := game.Position()
	san, err := applyMove(game, pos, move)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SAN:      san,
		FEN:      game.FEN(),
		NextTurn: sideFrom(game.Position().Turn()),
	}

	switch game.Outcome() {
	case nchess.WhiteWon:
		result.GameOver = true
		winner := models.SideWhite
		result.Winner = &winner
		result.Reason = models.TerminationCheckmate
	case nchess.BlackWon:
		result.GameOver = true
		winner := models.SideBlack
		result.Winner = &winner
		result.Reason = models.TerminationCheckmate
	case nchess.Draw:
		result.GameOver = true
		if game.Method() == nchess.Stalemate {
			result.Reason = models.TerminationStalemate
		} else {
			result.Reason = models.TerminationDrawAgreed
		}
	}

	return result, nil
}

// applyMove tries UCI coordinates first, then SAN notation, mirroring how
// clients submit moves (coordinates from the board UI, SAN from replays).
func applyMove(game *nchess.Game, pos *nchess.Position, move MoveRequest) (string, error) {
	uci := strings.ToLower(strings.TrimSpace(move.From) + strings.TrimSpace(move.To) + strings.TrimSpace(move.Promotion))
	if len(uci) >= 4 {
		notation := nchess.UCINotation{}
		if mv, err := notation.Decode(pos, uci); err == nil {
			if err := game.Move(mv, nil); err != nil {
				return "", ErrInvalidMove
			}
			return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
		}
	}

	san := strings.TrimSpace(move.Notation)
	if san == "" {
		return "", ErrInvalidMove
	}
	if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
		return "", ErrInvalidMove
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return "", ErrInvalidMove
	}
	return nchess.AlgebraicNotation{}.Encode(pos, moves[len(moves)-1]), nil
}

func gameFromFEN(position string) (*nchess.Game, error) {
	fen := strings.TrimSpace(position)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(option), nil
}

func sideFrom(c nchess.Color) models.Side {
	if c == nchess.White {
		return models.SideWhite
	}
	return models.SideBlack
}
