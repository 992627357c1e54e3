package game

import (
	"errors"
	"net/http"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/accesskey"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/coinflip-backend/internal/randomness"
)

const (
	gameNotFound          string = "error.game.not-found"
	gameInvalidState      string = "error.game.invalid-state"
	gameExpired           string = "error.game.expired"
	gameNotExpired        string = "error.game.not-expired"
	gameSelfJoin          string = "error.game.self-join"
	gameBadKey            string = "error.game.bad-access-key"
	gameInvalidAmount     string = "error.game.invalid-amount"
	gameUnsupportedToken  string = "error.game.unsupported-token"
	gameInvalidCommitment string = "error.game.invalid-key-commitment"
	gameNotCreator        string = "error.game.not-creator"
	gameNotStalled        string = "error.game.not-stalled"
	gameOutcomeRecorded   string = "error.game.outcome-recorded"
	custodianFailure      string = "error.custody.failure"
	randomnessUnavailable string = "error.randomness.unavailable"
	randomnessInvalid     string = "error.randomness.invalid"
)

type problemKind struct {
	err    error
	status int
	code   string
	title  string
}

var problemKinds = []problemKind{
	{ErrNotFound, http.StatusNotFound, gameNotFound, "Game not found"},
	{ErrInvalidState, http.StatusConflict, gameInvalidState, "Game is not in a state that allows this operation"},
	{ErrExpired, http.StatusConflict, gameExpired, "Game has timed out"},
	{ErrNotExpired, http.StatusConflict, gameNotExpired, "Game has not timed out yet"},
	{ErrSelfJoin, http.StatusBadRequest, gameSelfJoin, "Cannot join your own game"},
	{ErrBadKey, http.StatusForbidden, gameBadKey, "Access key does not match"},
	{ErrInvalidAmount, http.StatusBadRequest, gameInvalidAmount, "Stake amount is not valid"},
	{ErrUnsupportedToken, http.StatusBadRequest, gameUnsupportedToken, "Token is not supported"},
	{ErrInvalidKeyCommitment, http.StatusBadRequest, gameInvalidCommitment, "Access key hash does not match the game visibility"},
	{accesskey.ErrMalformedHash, http.StatusBadRequest, gameInvalidCommitment, "Access key hash is malformed"},
	{ErrNotCreator, http.StatusForbidden, gameNotCreator, "Only the creator can claim a timeout"},
	{ErrNotStalled, http.StatusConflict, gameNotStalled, "Game randomness is not stalled"},
	{ErrOutcomeRecorded, http.StatusConflict, gameOutcomeRecorded, "Game outcome is already recorded"},
	{ErrCustodianFailure, http.StatusBadGateway, custodianFailure, "Token custodian failed"},
	{ErrRandomnessUnavailable, http.StatusServiceUnavailable, randomnessUnavailable, "Randomness is unavailable"},
	{randomness.ErrInvalidRandomness, http.StatusBadRequest, randomnessInvalid, "Random words are not valid"},
}

// toProblem maps engine errors to the problem returned to clients. Unknown
// errors become the generic unexpected problem.
func toProblem(err error, gameId string) *reject.ProblemWithTrace {
	for _, kind := range problemKinds {
		if errors.Is(err, kind.err) {
			problem := reject.NewProblem().
				WithTitle(kind.title).
				WithStatus(kind.status).
				WithCode(kind.code).
				WithDetail(err.Error())
			if gameId != "" {
				problem.WithParam("gameId", gameId)
			}
			return &reject.ProblemWithTrace{
				Problem: problem.Build(),
				Cause:   err,
			}
		}
	}
	return &reject.ProblemWithTrace{
		Problem: reject.UnexpectedProblem(err),
		Cause:   err,
	}
}
