package model

import (
	"time"
)

type Game struct {
	Id                    uint64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Token                 string     `gorm:"not null" json:"token"`
	Amount                uint64     `gorm:"not null" json:"amount"`
	Creator               string     `gorm:"not null;index" json:"creator"`
	Opponent              *string    `gorm:"index" json:"opponent,omitempty"`
	IsPrivate             bool       `gorm:"not null" json:"isPrivate"`
	AccessKeyHash         string     `gorm:"not null" json:"-"`
	CreatedAt             time.Time  `gorm:"not null" json:"createdAt"`
	JoinedAt              *time.Time `json:"joinedAt,omitempty"`
	Status                GameStatus `gorm:"not null;index" json:"status"`
	RandomnessRequestId   *string    `gorm:"uniqueIndex" json:"randomnessRequestId,omitempty"`
	RandomnessRequestedAt *time.Time `json:"randomnessRequestedAt,omitempty"`
	Winner                *string    `json:"winner,omitempty"`
	Payout                uint64     `json:"payout"`
	Fee                   uint64     `json:"fee"`
	RandomValue           string     `json:"randomValue,omitempty"`
	ResolvedAt            *time.Time `json:"resolvedAt,omitempty"`
}

func (Game) TableName() string {
	return "coinflip_game"
}

// Pot is the sum of both stakes once the game has been joined.
func (g Game) Pot() uint64 {
	return g.Amount * 2
}

func (g Game) HasParticipant(participant string) bool {
	if g.Creator == participant {
		return true
	}
	return g.Opponent != nil && *g.Opponent == participant
}

// HasOutcome reports whether the deciding word, winner and split have been
// recorded. A game with an outcome only waits on its payouts.
func (g Game) HasOutcome() bool {
	return g.RandomValue != "" && g.Winner != nil
}

// Loser is only meaningful for games with an outcome.
func (g Game) Loser() string {
	if g.Winner == nil || g.Opponent == nil {
		return ""
	}
	if *g.Winner == g.Creator {
		return *g.Opponent
	}
	return g.Creator
}

// Clone returns a deep copy so mutations never leak into a stored record.
func (g Game) Clone() Game {
	c := g
	c.Opponent = cloneString(g.Opponent)
	c.RandomnessRequestId = cloneString(g.RandomnessRequestId)
	c.Winner = cloneString(g.Winner)
	c.JoinedAt = cloneTime(g.JoinedAt)
	c.RandomnessRequestedAt = cloneTime(g.RandomnessRequestedAt)
	c.ResolvedAt = cloneTime(g.ResolvedAt)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
