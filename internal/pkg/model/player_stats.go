package model

type PlayerStats struct {
	Participant string `json:"participant"`
	Wins        uint64 `json:"wins"`
	Losses      uint64 `json:"losses"`
	TotalWon    uint64 `json:"totalWon"`
}

type GameResult struct {
	GameId uint64 `json:"gameId"`
	Winner string `json:"winner"`
	Loser  string `json:"loser"`
	Payout uint64 `json:"payout"`
}
