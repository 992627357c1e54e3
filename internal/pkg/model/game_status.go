package model

type GameStatus string

const (
	GameOpen               GameStatus = "OPEN"
	GameJoined             GameStatus = "JOINED"
	GameAwaitingRandomness GameStatus = "AWAITING_RANDOMNESS"
	GameResolved           GameStatus = "RESOLVED"
	GameTimedOut           GameStatus = "TIMED_OUT"
)

var gameTransitions = map[GameStatus][]GameStatus{
	GameOpen:               {GameJoined, GameTimedOut},
	GameJoined:             {GameAwaitingRandomness},
	GameAwaitingRandomness: {GameAwaitingRandomness, GameResolved},
}

func (s GameStatus) IsTerminal() bool {
	return s == GameResolved || s == GameTimedOut
}

func (s GameStatus) IsValid() bool {
	switch s {
	case GameOpen, GameJoined, GameAwaitingRandomness, GameResolved, GameTimedOut:
		return true
	}
	return false
}

// CanTransitionTo reports whether a game may move from s to next. Staying in
// the same non-terminal status is always allowed since mutations that only
// touch bookkeeping fields do not change the status.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, allowed := range gameTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
