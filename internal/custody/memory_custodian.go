package custody

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type balanceKey struct {
	account string
	token   string
}

type movementKey struct {
	gameId  uint64
	kind    Kind
	account string
}

type MemoryCustodian struct {
	mu        sync.Mutex
	balances  map[balanceKey]uint64
	movements map[movementKey]Movement
	games     map[uint64]GameBalance
	history   []Movement
}

func NewMemoryCustodian() *MemoryCustodian {
	return &MemoryCustodian{
		balances:  make(map[balanceKey]uint64),
		movements: make(map[movementKey]Movement),
		games:     make(map[uint64]GameBalance),
	}
}

func (c *MemoryCustodian) Escrow(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindEscrow, Account: participant, Token: token, Amount: amount})
}

func (c *MemoryCustodian) Payout(ctx context.Context, gameId uint64, recipient, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindPayout, Account: recipient, Token: token, Amount: amount})
}

func (c *MemoryCustodian) Refund(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindRefund, Account: participant, Token: token, Amount: amount})
}

func (c *MemoryCustodian) Credit(_ context.Context, account, token string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[balanceKey{account, token}] += amount
	return nil
}

func (c *MemoryCustodian) Balance(_ context.Context, account, token string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.balances[balanceKey{account, token}], nil
}

// Movements returns every applied movement in application order.
func (c *MemoryCustodian) Movements() []Movement {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Movement(nil), c.history...)
}

func (c *MemoryCustodian) apply(ctx context.Context, m Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Amount == 0 {
		return ErrInvalidAmount
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := movementKey{m.GameId, m.Kind, m.Account}
	if existing, ok := c.movements[key]; ok {
		if existing.sameAs(m) {
			return nil
		}
		return fmt.Errorf("%w: game %d %s %s", ErrConflictingMovement, m.GameId, m.Kind, m.Account)
	}

	from, to, shortfall := route(m)
	fromKey := balanceKey{from, m.Token}
	if c.balances[fromKey] < m.Amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", shortfall, from, c.balances[fromKey], m.Token, m.Amount)
	}
	game := c.games[m.GameId]
	if err := game.admit(m); err != nil {
		return err
	}
	c.games[m.GameId] = game
	c.balances[fromKey] -= m.Amount
	c.balances[balanceKey{to, m.Token}] += m.Amount

	m.Id = uint64(len(c.history) + 1)
	m.CreatedAt = time.Now().UTC()
	c.movements[key] = m
	c.history = append(c.history, m)
	return nil
}
