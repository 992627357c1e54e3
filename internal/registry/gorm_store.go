package registry

import (
	"context"
	"errors"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"gorm.io/gorm"
)

const gameSequence = "game"

type sequence struct {
	Name  string `gorm:"primaryKey"`
	Value uint64 `gorm:"not null"`
}

func (sequence) TableName() string {
	return "coinflip_sequence"
}

type retiredRequest struct {
	RequestId string `gorm:"primaryKey"`
	GameId    uint64 `gorm:"not null"`
}

func (retiredRequest) TableName() string {
	return "coinflip_retired_request"
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the tables and seeds the id counter once. Restarting never
// resets the counter.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Game{}, &sequence{}, &retiredRequest{}); err != nil {
		return err
	}
	return db.
		Where(sequence{Name: gameSequence}).
		FirstOrCreate(&sequence{Name: gameSequence}).
		Error
}

func (s *GormStore) NextId(ctx context.Context) (uint64, error) {
	var next uint64
	result := s.db.WithContext(ctx).
		Raw("UPDATE coinflip_sequence SET value = value + 1 WHERE name = ? RETURNING value", gameSequence).
		Scan(&next)
	if result.Error != nil {
		return 0, result.Error
	}
	if next == 0 {
		return 0, errors.New("registry: game sequence is not initialised")
	}
	return next, nil
}

func (s *GormStore) Insert(ctx context.Context, game model.Game) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Game{}).Where("id = ?", game.Id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateId
		}
		return tx.Create(&game).Error
	})
}

func (s *GormStore) Find(ctx context.Context, id uint64) (model.Game, error) {
	return s.findOne(s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *GormStore) FindByRequestId(ctx context.Context, requestId string) (model.Game, error) {
	return s.findOne(s.db.WithContext(ctx).Where("randomness_request_id = ?", requestId))
}

func (s *GormStore) Save(ctx context.Context, game model.Game) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := s.findOne(tx.Where("id = ?", game.Id))
		if err != nil {
			return err
		}

		if game.RandomnessRequestId != nil {
			var retired int64
			if err := tx.Model(&retiredRequest{}).Where("request_id = ?", *game.RandomnessRequestId).Count(&retired).Error; err != nil {
				return err
			}
			if retired > 0 {
				return ErrDuplicateRequestId
			}
		}
		if previous.RandomnessRequestId != nil &&
			(game.RandomnessRequestId == nil || *game.RandomnessRequestId != *previous.RandomnessRequestId) {
			if err := tx.Create(&retiredRequest{RequestId: *previous.RandomnessRequestId, GameId: game.Id}).Error; err != nil {
				return err
			}
		}

		return tx.
			Model(&model.Game{}).
			Where("id = ?", game.Id).
			Select("*").
			Updates(&game).
			Error
	})
}

func (s *GormStore) ListByStatus(ctx context.Context, statuses []model.GameStatus, afterId uint64, limit int) ([]model.Game, error) {
	query := s.db.WithContext(ctx).
		Where("status IN ? AND id > ?", statuses, afterId).
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var games []model.Game
	result := query.Find(&games)
	return games, result.Error
}

func (s *GormStore) ListResolvedFor(ctx context.Context, participant string) ([]model.Game, error) {
	var games []model.Game
	result := s.db.WithContext(ctx).
		Where("status = ? AND (creator = ? OR opponent = ?)", model.GameResolved, participant, participant).
		Order("id").
		Find(&games)
	return games, result.Error
}

func (s *GormStore) ListResolved(ctx context.Context) ([]model.Game, error) {
	var games []model.Game
	result := s.db.WithContext(ctx).
		Where("status = ?", model.GameResolved).
		Order("id").
		Find(&games)
	return games, result.Error
}

func (s *GormStore) findOne(query *gorm.DB) (model.Game, error) {
	var game model.Game
	result := query.Limit(1).Find(&game)
	if result.Error != nil {
		return model.Game{}, result.Error
	}
	if result.RowsAffected == 0 {
		return model.Game{}, ErrNotFound
	}
	return game, nil
}
