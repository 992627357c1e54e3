package game

import "errors"

var (
	ErrNotFound              = errors.New("game not found")
	ErrInvalidState          = errors.New("operation not valid for the game status")
	ErrExpired               = errors.New("game has timed out")
	ErrNotExpired            = errors.New("game has not timed out yet")
	ErrSelfJoin              = errors.New("creator cannot join their own game")
	ErrBadKey                = errors.New("access key does not match")
	ErrCustodianFailure      = errors.New("custodian call failed")
	ErrRandomnessUnavailable = errors.New("randomness unavailable")

	ErrInvalidAmount        = errors.New("stake must be positive and its pot must fit a stored amount")
	ErrUnsupportedToken     = errors.New("token is not supported")
	ErrInvalidKeyCommitment = errors.New("private games need an access key hash, public games must not have one")
	ErrNotCreator           = errors.New("only the creator can claim a timeout")
	ErrNotStalled           = errors.New("game is still within the randomness SLA")
	ErrOutcomeRecorded      = errors.New("game outcome is already recorded")
)
