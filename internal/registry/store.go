package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
)

var (
	ErrNotFound           = errors.New("registry: game not found")
	ErrDuplicateId        = errors.New("registry: game id already registered")
	ErrInvalidTransition  = errors.New("registry: invalid status transition")
	ErrDuplicateRequestId = errors.New("registry: randomness request id already assigned")
)

// Store persists games and the id counter. Implementations must be safe for
// concurrent use; per game serialization is the caller's job.
type Store interface {
	NextId(ctx context.Context) (uint64, error)
	Insert(ctx context.Context, game model.Game) error
	Find(ctx context.Context, id uint64) (model.Game, error)
	FindByRequestId(ctx context.Context, requestId string) (model.Game, error)
	Save(ctx context.Context, game model.Game) error
	ListByStatus(ctx context.Context, statuses []model.GameStatus, afterId uint64, limit int) ([]model.Game, error)
	ListResolvedFor(ctx context.Context, participant string) ([]model.Game, error)
	ListResolved(ctx context.Context) ([]model.Game, error)
}

// Stalled reports whether a joined game has waited on randomness since before
// cutoff. A game whose request never reached the port is always stalled. A
// game with a recorded outcome is never stalled: its randomness has arrived.
func Stalled(g model.Game, cutoff time.Time) bool {
	if g.Status != model.GameJoined && g.Status != model.GameAwaitingRandomness {
		return false
	}
	if g.HasOutcome() {
		return false
	}
	if g.RandomnessRequestId == nil || g.RandomnessRequestedAt == nil {
		return true
	}
	return g.RandomnessRequestedAt.Before(cutoff)
}
