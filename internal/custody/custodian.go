package custody

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PoolAccount holds every escrowed stake until a game settles.
const PoolAccount = "coinflip:pool"

type Kind string

const (
	KindEscrow Kind = "ESCROW"
	KindPayout Kind = "PAYOUT"
	KindRefund Kind = "REFUND"
)

var (
	ErrInvalidAmount       = errors.New("custody: amount must be positive")
	ErrInsufficientFunds   = errors.New("custody: insufficient funds")
	ErrPoolExhausted       = errors.New("custody: pool balance below requested movement")
	ErrConflictingMovement = errors.New("custody: conflicting movement already recorded")
	ErrUnmatchedMovement   = errors.New("custody: release not covered by the game's escrow")
)

// Movement is one custodian call. A movement is identified by GameId, Kind and
// Account; repeating an identical movement is a no-op.
type Movement struct {
	Id        uint64    `gorm:"primaryKey" json:"id"`
	GameId    uint64    `gorm:"not null;uniqueIndex:idx_custody_movement_key" json:"gameId"`
	Kind      Kind      `gorm:"not null;uniqueIndex:idx_custody_movement_key" json:"kind"`
	Account   string    `gorm:"not null;uniqueIndex:idx_custody_movement_key" json:"account"`
	Token     string    `gorm:"not null" json:"token"`
	Amount    uint64    `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Movement) TableName() string {
	return "custody_movement"
}

func (m Movement) sameAs(other Movement) bool {
	return m.Token == other.Token && m.Amount == other.Amount
}

type Balance struct {
	Account string `gorm:"primaryKey" json:"account"`
	Token   string `gorm:"primaryKey" json:"token"`
	Amount  uint64 `gorm:"not null" json:"amount"`
}

func (Balance) TableName() string {
	return "custody_balance"
}

// GameBalance tallies what a game has escrowed into the pool and what it has
// released back out. A game can never release more than it escrowed.
type GameBalance struct {
	GameId   uint64 `gorm:"primaryKey;autoIncrement:false" json:"gameId"`
	Token    string `gorm:"not null" json:"token"`
	Escrowed uint64 `gorm:"not null" json:"escrowed"`
	Released uint64 `gorm:"not null" json:"released"`
}

func (GameBalance) TableName() string {
	return "custody_game_balance"
}

// admit adds m to the tally, or rejects it when the game holds another token
// or its unreleased escrow does not cover the release.
func (b *GameBalance) admit(m Movement) error {
	if b.Token != "" && b.Token != m.Token {
		return fmt.Errorf("%w: game %d holds %s, not %s", ErrUnmatchedMovement, m.GameId, b.Token, m.Token)
	}
	if m.Kind == KindEscrow {
		b.Escrowed += m.Amount
	} else {
		if m.Amount > b.Escrowed-b.Released {
			return fmt.Errorf("%w: game %d has %d %s unreleased, needs %d", ErrUnmatchedMovement, m.GameId, b.Escrowed-b.Released, m.Token, m.Amount)
		}
		b.Released += m.Amount
	}
	b.GameId = m.GameId
	b.Token = m.Token
	return nil
}

// Custodian moves stakes between participants and the pool. Each call is
// atomic: either the full amount moves or nothing does.
type Custodian interface {
	Escrow(ctx context.Context, gameId uint64, participant, token string, amount uint64) error
	Payout(ctx context.Context, gameId uint64, recipient, token string, amount uint64) error
	Refund(ctx context.Context, gameId uint64, participant, token string, amount uint64) error
}

// Ledger exposes balances for the wallet endpoints.
type Ledger interface {
	Balance(ctx context.Context, account, token string) (uint64, error)
	Credit(ctx context.Context, account, token string, amount uint64) error
}

// route returns the debit and credit side of a movement.
func route(m Movement) (from string, to string, shortfall error) {
	if m.Kind == KindEscrow {
		return m.Account, PoolAccount, ErrInsufficientFunds
	}
	return PoolAccount, m.Account, ErrPoolExhausted
}
