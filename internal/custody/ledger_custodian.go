package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerCustodian keeps balances in postgres. Every movement runs in its own
// transaction with the debited balance row locked.
type LedgerCustodian struct {
	db *gorm.DB
}

func NewLedgerCustodian(db *gorm.DB) *LedgerCustodian {
	return &LedgerCustodian{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Balance{}, &Movement{}, &GameBalance{})
}

func (c *LedgerCustodian) Escrow(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindEscrow, Account: participant, Token: token, Amount: amount})
}

func (c *LedgerCustodian) Payout(ctx context.Context, gameId uint64, recipient, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindPayout, Account: recipient, Token: token, Amount: amount})
}

func (c *LedgerCustodian) Refund(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.apply(ctx, Movement{GameId: gameId, Kind: KindRefund, Account: participant, Token: token, Amount: amount})
}

func (c *LedgerCustodian) Credit(ctx context.Context, account, token string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, account, token, amount)
	})
}

func (c *LedgerCustodian) Balance(ctx context.Context, account, token string) (uint64, error) {
	var balance Balance
	result := c.db.WithContext(ctx).
		Where("account = ? AND token = ?", account, token).
		Limit(1).
		Find(&balance)
	if result.Error != nil {
		return 0, result.Error
	}
	return balance.Amount, nil
}

func (c *LedgerCustodian) apply(ctx context.Context, m Movement) error {
	if m.Amount == 0 {
		return ErrInvalidAmount
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Movement
		found := tx.
			Where("game_id = ? AND kind = ? AND account = ?", m.GameId, m.Kind, m.Account).
			Limit(1).
			Find(&existing)
		if found.Error != nil {
			return found.Error
		}
		if found.RowsAffected > 0 {
			if existing.sameAs(m) {
				log.Info().Uint64("game_id", m.GameId).Str("kind", string(m.Kind)).Msg("Movement already applied")
				return nil
			}
			return fmt.Errorf("%w: game %d %s %s", ErrConflictingMovement, m.GameId, m.Kind, m.Account)
		}

		from, to, shortfall := route(m)
		if err := debit(tx, from, m.Token, m.Amount, shortfall); err != nil {
			return err
		}
		if err := tally(tx, m); err != nil {
			return err
		}
		if err := credit(tx, to, m.Token, m.Amount); err != nil {
			return err
		}

		m.CreatedAt = time.Now().UTC()
		return tx.Create(&m).Error
	})

	if err != nil {
		log.Warn().Err(err).Uint64("game_id", m.GameId).Str("kind", string(m.Kind)).Msg("Custody movement failed")
	}
	return err
}

func debit(tx *gorm.DB, account, token string, amount uint64, shortfall error) error {
	var balance Balance
	result := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account = ? AND token = ?", account, token).
		Limit(1).
		Find(&balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 || balance.Amount < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", shortfall, account, balance.Amount, token, amount)
	}

	return tx.
		Model(&Balance{}).
		Where("account = ? AND token = ?", account, token).
		Update("amount", gorm.Expr("amount - ?", amount)).
		Error
}

func credit(tx *gorm.DB, account, token string, amount uint64) error {
	return tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "token"}},
			DoUpdates: clause.Assignments(map[string]any{"amount": gorm.Expr("custody_balance.amount + ?", amount)}),
		}).
		Create(&Balance{Account: account, Token: token, Amount: amount}).
		Error
}

// tally records m against its game's escrow, with the game row locked so
// concurrent releases cannot both pass the check.
func tally(tx *gorm.DB, m Movement) error {
	var game GameBalance
	result := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("game_id = ?", m.GameId).
		Limit(1).
		Find(&game)
	if result.Error != nil {
		return result.Error
	}
	if err := game.admit(m); err != nil {
		return err
	}

	if m.Kind == KindEscrow {
		return tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "game_id"}},
				DoUpdates: clause.Assignments(map[string]any{"escrowed": gorm.Expr("custody_game_balance.escrowed + ?", m.Amount)}),
			}).
			Create(&GameBalance{GameId: m.GameId, Token: m.Token, Escrowed: m.Amount}).
			Error
	}
	return tx.
		Model(&GameBalance{}).
		Where("game_id = ?", m.GameId).
		Update("released", gorm.Expr("released + ?", m.Amount)).
		Error
}
