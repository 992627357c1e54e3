package registry

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"github.com/rs/zerolog/log"
)

const defaultBatchSize = 50

// Draft carries the immutable fields of a game about to be registered.
type Draft struct {
	Token         string
	Amount        uint64
	Creator       string
	IsPrivate     bool
	AccessKeyHash string
	CreatedAt     time.Time
}

type Registry struct {
	store     Store
	batchSize int
}

func New(store Store) *Registry {
	return &Registry{store: store, batchSize: defaultBatchSize}
}

// Reserve hands out the next identifier. A reserved id that is never
// registered stays burned.
func (r *Registry) Reserve(ctx context.Context) (uint64, error) {
	return r.store.NextId(ctx)
}

func (r *Registry) Register(ctx context.Context, id uint64, draft Draft) (model.Game, error) {
	game := model.Game{
		Id:            id,
		Token:         draft.Token,
		Amount:        draft.Amount,
		Creator:       draft.Creator,
		IsPrivate:     draft.IsPrivate,
		AccessKeyHash: draft.AccessKeyHash,
		CreatedAt:     draft.CreatedAt,
		Status:        model.GameOpen,
	}
	if err := r.store.Insert(ctx, game); err != nil {
		return model.Game{}, err
	}
	log.Info().Uint64("game_id", id).Str("creator", draft.Creator).Msg("Game registered")
	return game, nil
}

func (r *Registry) Allocate(ctx context.Context, draft Draft) (uint64, error) {
	id, err := r.Reserve(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := r.Register(ctx, id, draft); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Registry) Get(ctx context.Context, id uint64) (model.Game, error) {
	return r.store.Find(ctx, id)
}

func (r *Registry) GetByRequestId(ctx context.Context, requestId string) (model.Game, error) {
	return r.store.FindByRequestId(ctx, requestId)
}

// Update applies mutation to a copy of the stored game and persists it if the
// resulting status change is permitted. Immutable fields are restored before
// saving, whatever the mutation did to them.
func (r *Registry) Update(ctx context.Context, id uint64, mutation func(*model.Game) error) (model.Game, error) {
	current, err := r.store.Find(ctx, id)
	if err != nil {
		return model.Game{}, err
	}

	next := current.Clone()
	if err := mutation(&next); err != nil {
		return model.Game{}, err
	}
	if !current.Status.CanTransitionTo(next.Status) {
		return model.Game{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}

	next.Id = current.Id
	next.Token = current.Token
	next.Amount = current.Amount
	next.Creator = current.Creator
	next.IsPrivate = current.IsPrivate
	next.AccessKeyHash = current.AccessKeyHash
	next.CreatedAt = current.CreatedAt

	if err := r.store.Save(ctx, next); err != nil {
		return model.Game{}, err
	}
	if next.Status != current.Status {
		log.Info().
			Uint64("game_id", id).
			Str("from", string(current.Status)).
			Str("to", string(next.Status)).
			Msg("Game transitioned")
	}
	return next, nil
}

// ListOpen yields open games in id order starting after afterId. The sequence
// pages through the store lazily, so a consumer can stop early and resume
// later from the last id it saw.
func (r *Registry) ListOpen(ctx context.Context, afterId uint64) iter.Seq2[model.Game, error] {
	return r.list(ctx, []model.GameStatus{model.GameOpen}, afterId)
}

func (r *Registry) ListResolvedFor(ctx context.Context, participant string) ([]model.Game, error) {
	return r.store.ListResolvedFor(ctx, participant)
}

func (r *Registry) ListResolved(ctx context.Context) ([]model.Game, error) {
	return r.store.ListResolved(ctx)
}

// ListStalled returns joined games whose randomness was requested before the
// cutoff, or never accepted by the port at all.
func (r *Registry) ListStalled(ctx context.Context, cutoff time.Time) ([]model.Game, error) {
	var stalled []model.Game
	for game, err := range r.list(ctx, []model.GameStatus{model.GameJoined, model.GameAwaitingRandomness}, 0) {
		if err != nil {
			return nil, err
		}
		if Stalled(game, cutoff) {
			stalled = append(stalled, game)
		}
	}
	return stalled, nil
}

// ListUnsettled returns games whose outcome is recorded but whose payouts
// have not all gone through.
func (r *Registry) ListUnsettled(ctx context.Context) ([]model.Game, error) {
	var unsettled []model.Game
	for game, err := range r.list(ctx, []model.GameStatus{model.GameAwaitingRandomness}, 0) {
		if err != nil {
			return nil, err
		}
		if game.HasOutcome() {
			unsettled = append(unsettled, game)
		}
	}
	return unsettled, nil
}

func (r *Registry) list(ctx context.Context, statuses []model.GameStatus, afterId uint64) iter.Seq2[model.Game, error] {
	return func(yield func(model.Game, error) bool) {
		cursor := afterId
		for {
			batch, err := r.store.ListByStatus(ctx, statuses, cursor, r.batchSize)
			if err != nil {
				yield(model.Game{}, err)
				return
			}
			for _, game := range batch {
				if !yield(game, nil) {
					return
				}
				cursor = game.Id
			}
			if len(batch) < r.batchSize {
				return
			}
		}
	}
}
