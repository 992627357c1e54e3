package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	counter   uint64
	games     map[uint64]model.Game
	byRequest map[string]uint64
	retired   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:     make(map[uint64]model.Game),
		byRequest: make(map[string]uint64),
		retired:   make(map[string]struct{}),
	}
}

func (s *MemoryStore) NextId(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	return s.counter, nil
}

func (s *MemoryStore) Insert(_ context.Context, game model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[game.Id]; ok {
		return ErrDuplicateId
	}
	if err := s.checkRequestId(game); err != nil {
		return err
	}
	s.games[game.Id] = game.Clone()
	s.index(game)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id uint64) (model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[id]
	if !ok {
		return model.Game{}, ErrNotFound
	}
	return game.Clone(), nil
}

func (s *MemoryStore) FindByRequestId(ctx context.Context, requestId string) (model.Game, error) {
	s.mu.RLock()
	id, ok := s.byRequest[requestId]
	s.mu.RUnlock()
	if !ok {
		return model.Game{}, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *MemoryStore) Save(_ context.Context, game model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.games[game.Id]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkRequestId(game); err != nil {
		return err
	}
	// a superseded request id stops resolving to the game and is never reused
	if previous.RandomnessRequestId != nil &&
		(game.RandomnessRequestId == nil || *game.RandomnessRequestId != *previous.RandomnessRequestId) {
		delete(s.byRequest, *previous.RandomnessRequestId)
		s.retired[*previous.RandomnessRequestId] = struct{}{}
	}
	s.games[game.Id] = game.Clone()
	s.index(game)
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses []model.GameStatus, afterId uint64, limit int) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var games []model.Game
	for _, game := range s.games {
		if game.Id > afterId && slices.Contains(statuses, game.Status) {
			games = append(games, game.Clone())
		}
	}
	sortById(games)
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

func (s *MemoryStore) ListResolvedFor(_ context.Context, participant string) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var games []model.Game
	for _, game := range s.games {
		if game.Status == model.GameResolved && game.HasParticipant(participant) {
			games = append(games, game.Clone())
		}
	}
	sortById(games)
	return games, nil
}

func (s *MemoryStore) ListResolved(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var games []model.Game
	for _, game := range s.games {
		if game.Status == model.GameResolved {
			games = append(games, game.Clone())
		}
	}
	sortById(games)
	return games, nil
}

func (s *MemoryStore) checkRequestId(game model.Game) error {
	if game.RandomnessRequestId == nil {
		return nil
	}
	requestId := *game.RandomnessRequestId
	if _, ok := s.retired[requestId]; ok {
		return ErrDuplicateRequestId
	}
	if owner, ok := s.byRequest[requestId]; ok && owner != game.Id {
		return ErrDuplicateRequestId
	}
	return nil
}

func (s *MemoryStore) index(game model.Game) {
	if game.RandomnessRequestId != nil {
		s.byRequest[*game.RandomnessRequestId] = game.Id
	}
}

func sortById(games []model.Game) {
	slices.SortFunc(games, func(a, b model.Game) int {
		switch {
		case a.Id < b.Id:
			return -1
		case a.Id > b.Id:
			return 1
		}
		return 0
	})
}
