package registry

import (
	"context"
	"testing"
	"time"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createdAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func draft(creator string) Draft {
	return Draft{
		Token:     "A.0000000000000001.USDC",
		Amount:    100,
		Creator:   creator,
		CreatedAt: createdAt,
	}
}

func strPtr(s string) *string {
	return &s
}

func TestRegistry_AllocateIsMonotonic(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	first, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)
	second, err := r.Allocate(ctx, draft("0x02"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	game, err := r.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.GameOpen, game.Status)
	assert.Equal(t, "0x01", game.Creator)
}

func TestRegistry_ReservedIdIsNeverReused(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	burned, err := r.Reserve(ctx)
	require.NoError(t, err)

	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)
	assert.Greater(t, id, burned)

	_, err = r.Get(ctx, burned)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterRejectsDuplicateId(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)

	_, err = r.Register(ctx, id, draft("0x02"))
	assert.ErrorIs(t, err, ErrDuplicateId)
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := New(NewMemoryStore()).Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_UpdateValidatesTransition(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)

	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameResolved
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.GameOpen, stored.Status)

	updated, err := r.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameTimedOut
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.GameTimedOut, updated.Status)

	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameOpen
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRegistry_UpdateKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)

	updated, err := r.Update(ctx, id, func(g *model.Game) error {
		g.Amount = 1
		g.Creator = "0x99"
		g.Status = model.GameJoined
		g.Opponent = strPtr("0x02")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), updated.Amount)
	assert.Equal(t, "0x01", updated.Creator)
	assert.Equal(t, "0x02", *updated.Opponent)
}

func TestRegistry_RequestIdIndex(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)
	other, err := r.Allocate(ctx, draft("0x03"))
	require.NoError(t, err)

	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameJoined
		return nil
	})
	require.NoError(t, err)
	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameAwaitingRandomness
		g.RandomnessRequestId = strPtr("req-1")
		return nil
	})
	require.NoError(t, err)

	game, err := r.GetByRequestId(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, id, game.Id)

	// a request id belongs to exactly one game
	_, err = r.Update(ctx, other, func(g *model.Game) error {
		g.Status = model.GameJoined
		g.RandomnessRequestId = strPtr("req-1")
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicateRequestId)

	// superseding retires the old id for good
	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.RandomnessRequestId = strPtr("req-2")
		return nil
	})
	require.NoError(t, err)
	_, err = r.GetByRequestId(ctx, "req-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update(ctx, id, func(g *model.Game) error {
		g.RandomnessRequestId = strPtr("req-1")
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicateRequestId)
}

func TestRegistry_ListOpenIsOrderedLazyAndRestartable(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	r.batchSize = 2

	for i := 0; i < 5; i++ {
		_, err := r.Allocate(ctx, draft("0x01"))
		require.NoError(t, err)
	}
	_, err := r.Update(ctx, 3, func(g *model.Game) error {
		g.Status = model.GameTimedOut
		return nil
	})
	require.NoError(t, err)

	var ids []uint64
	for game, err := range r.ListOpen(ctx, 0) {
		require.NoError(t, err)
		ids = append(ids, game.Id)
	}
	assert.Equal(t, []uint64{1, 2, 4, 5}, ids)

	// stop early, then resume from the last id seen
	var firstPage []uint64
	for game, err := range r.ListOpen(ctx, 0) {
		require.NoError(t, err)
		firstPage = append(firstPage, game.Id)
		if len(firstPage) == 2 {
			break
		}
	}
	var rest []uint64
	for game, err := range r.ListOpen(ctx, firstPage[len(firstPage)-1]) {
		require.NoError(t, err)
		rest = append(rest, game.Id)
	}
	assert.Equal(t, []uint64{1, 2}, firstPage)
	assert.Equal(t, []uint64{4, 5}, rest)
}

func TestRegistry_ListStalled(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	cutoff := createdAt.Add(time.Hour)
	early := createdAt.Add(time.Minute)
	late := createdAt.Add(2 * time.Hour)

	for i := 0; i < 4; i++ {
		_, err := r.Allocate(ctx, draft("0x01"))
		require.NoError(t, err)
	}
	join := func(id uint64, requestId string, at *time.Time) {
		_, err := r.Update(ctx, id, func(g *model.Game) error {
			g.Status = model.GameJoined
			return nil
		})
		require.NoError(t, err)
		if requestId == "" {
			return
		}
		_, err = r.Update(ctx, id, func(g *model.Game) error {
			g.Status = model.GameAwaitingRandomness
			g.RandomnessRequestId = strPtr(requestId)
			g.RandomnessRequestedAt = at
			return nil
		})
		require.NoError(t, err)
	}
	join(1, "req-early", &early)
	join(2, "req-late", &late)
	join(3, "", nil)
	join(4, "req-decided", &early)
	_, err := r.Update(ctx, 4, func(g *model.Game) error {
		g.Winner = strPtr("0x01")
		g.RandomValue = "42"
		return nil
	})
	require.NoError(t, err)

	stalled, err := r.ListStalled(ctx, cutoff)
	require.NoError(t, err)

	var ids []uint64
	for _, g := range stalled {
		ids = append(ids, g.Id)
	}
	assert.Equal(t, []uint64{1, 3}, ids)

	unsettled, err := r.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, uint64(4), unsettled[0].Id)
}

func TestRegistry_ListResolvedFor(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	id, err := r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)
	_, err = r.Allocate(ctx, draft("0x01"))
	require.NoError(t, err)

	for _, status := range []model.GameStatus{model.GameJoined, model.GameAwaitingRandomness, model.GameResolved} {
		status := status
		_, err = r.Update(ctx, id, func(g *model.Game) error {
			g.Status = status
			g.Opponent = strPtr("0x02")
			return nil
		})
		require.NoError(t, err)
	}

	games, err := r.ListResolvedFor(ctx, "0x02")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, id, games[0].Id)

	games, err = r.ListResolvedFor(ctx, "0x03")
	require.NoError(t, err)
	assert.Empty(t, games)

	all, err := r.ListResolved(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
