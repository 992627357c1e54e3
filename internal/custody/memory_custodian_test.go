package custody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000a1"
	bob   = "0x00000000000000b0"
	usdc  = "A.0000000000000001.USDC"

	treasuryAccount = "0x00000000000000fe"
)

func fundedCustodian(t *testing.T) *MemoryCustodian {
	c := NewMemoryCustodian()
	require.NoError(t, c.Credit(context.Background(), alice, usdc, 100))
	require.NoError(t, c.Credit(context.Background(), bob, usdc, 100))
	return c
}

func balance(t *testing.T, c *MemoryCustodian, account string) uint64 {
	b, err := c.Balance(context.Background(), account, usdc)
	require.NoError(t, err)
	return b
}

func TestMemoryCustodian_EscrowAndPayout(t *testing.T) {
	ctx := context.Background()
	c := fundedCustodian(t)

	require.NoError(t, c.Escrow(ctx, 1, alice, usdc, 40))
	require.NoError(t, c.Escrow(ctx, 1, bob, usdc, 40))
	assert.Equal(t, uint64(80), balance(t, c, PoolAccount))

	require.NoError(t, c.Payout(ctx, 1, alice, usdc, 80))
	assert.Equal(t, uint64(140), balance(t, c, alice))
	assert.Equal(t, uint64(60), balance(t, c, bob))
	assert.Equal(t, uint64(0), balance(t, c, PoolAccount))
	assert.Len(t, c.Movements(), 3)
}

func TestMemoryCustodian_InsufficientFunds(t *testing.T) {
	c := fundedCustodian(t)

	err := c.Escrow(context.Background(), 1, alice, usdc, 101)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(100), balance(t, c, alice))
	assert.Empty(t, c.Movements())
}

func TestMemoryCustodian_PoolExhausted(t *testing.T) {
	c := fundedCustodian(t)
	require.NoError(t, c.Escrow(context.Background(), 1, alice, usdc, 10))

	err := c.Payout(context.Background(), 1, bob, usdc, 11)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, uint64(10), balance(t, c, PoolAccount))
}

func TestMemoryCustodian_RepeatedMovement(t *testing.T) {
	ctx := context.Background()
	c := fundedCustodian(t)

	require.NoError(t, c.Escrow(ctx, 1, alice, usdc, 10))
	// identical repeat is accepted without moving funds twice
	require.NoError(t, c.Escrow(ctx, 1, alice, usdc, 10))
	assert.Equal(t, uint64(90), balance(t, c, alice))

	err := c.Escrow(ctx, 1, alice, usdc, 20)
	assert.ErrorIs(t, err, ErrConflictingMovement)
	assert.Equal(t, uint64(90), balance(t, c, alice))
	assert.Len(t, c.Movements(), 1)
}

func TestMemoryCustodian_RejectsZeroAndCancelled(t *testing.T) {
	c := fundedCustodian(t)

	assert.ErrorIs(t, c.Refund(context.Background(), 1, alice, usdc, 0), ErrInvalidAmount)
	assert.ErrorIs(t, c.Credit(context.Background(), alice, usdc, 0), ErrInvalidAmount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Escrow(ctx, 1, alice, usdc, 1), context.Canceled)
}

func TestMemoryCustodian_ReleaseMustMatchGameEscrow(t *testing.T) {
	ctx := context.Background()
	c := fundedCustodian(t)
	require.NoError(t, c.Escrow(ctx, 1, alice, usdc, 50))
	require.NoError(t, c.Escrow(ctx, 2, bob, usdc, 50))

	// game 99 never escrowed anything, so it cannot draw on the shared pool
	err := c.Payout(ctx, 99, bob, usdc, 50)
	assert.ErrorIs(t, err, ErrUnmatchedMovement)

	require.NoError(t, c.Payout(ctx, 1, treasuryAccount, usdc, 5))
	err = c.Payout(ctx, 1, alice, usdc, 46)
	assert.ErrorIs(t, err, ErrUnmatchedMovement)
	require.NoError(t, c.Payout(ctx, 1, alice, usdc, 45))

	flow := "A.0000000000000002.FLOW"
	require.NoError(t, c.Credit(ctx, alice, flow, 10))
	err = c.Escrow(ctx, 2, alice, flow, 10)
	assert.ErrorIs(t, err, ErrUnmatchedMovement)
	require.NoError(t, c.Refund(ctx, 2, bob, usdc, 50))

	assert.Equal(t, uint64(95), balance(t, c, alice))
	assert.Equal(t, uint64(100), balance(t, c, bob))
	assert.Zero(t, balance(t, c, PoolAccount))
	assert.Len(t, c.Movements(), 5)
}
