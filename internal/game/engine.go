package game

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/coinflip-backend/internal/custody"
	"github.com/kollektive-hackathon/coinflip-backend/internal/notify"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/accesskey"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/coinflip-backend/internal/randomness"
	"github.com/kollektive-hackathon/coinflip-backend/internal/registry"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	TimeoutDuration  time.Duration
	FeeBps           uint64
	TreasuryAccount  string
	RandomnessSla    time.Duration
	CustodianTimeout time.Duration
	SupportedTokens  []string
}

type CreateGameParams struct {
	Creator       string
	Token         string
	Amount        uint64
	IsPrivate     bool
	AccessKeyHash accesskey.Hash
}

// GameView is a game together with the conditions derived from the clock.
type GameView struct {
	model.Game
	ExpiresAt             time.Time `json:"expiresAt"`
	TimeoutEligible       bool      `json:"timeoutEligible"`
	RandomnessUnavailable bool      `json:"randomnessUnavailable"`
	SettlementPending     bool      `json:"settlementPending"`
}

// Engine runs the settlement state machine. Operations on one game are
// serialised; operations on different games run concurrently.
type Engine struct {
	registry   *registry.Registry
	custodian  custody.Custodian
	randomness randomness.Port
	notifier   notify.Notifier
	settings   Settings
	tokens     map[string]struct{}
	locks      *keyedMutex
	now        func() time.Time
}

func NewEngine(
	reg *registry.Registry,
	custodian custody.Custodian,
	port randomness.Port,
	notifier notify.Notifier,
	settings Settings,
) (*Engine, error) {
	if settings.FeeBps > BasisPoints {
		return nil, fmt.Errorf("fee of %d bps exceeds %d", settings.FeeBps, BasisPoints)
	}
	if settings.TimeoutDuration <= 0 {
		return nil, errors.New("timeout duration must be positive")
	}
	if settings.TreasuryAccount == "" {
		return nil, errors.New("treasury account is required")
	}
	if settings.CustodianTimeout <= 0 {
		settings.CustodianTimeout = 10 * time.Second
	}

	tokens := make(map[string]struct{}, len(settings.SupportedTokens))
	for _, token := range settings.SupportedTokens {
		tokens[token] = struct{}{}
	}

	return &Engine{
		registry:   reg,
		custodian:  custodian,
		randomness: port,
		notifier:   notifier,
		settings:   settings,
		tokens:     tokens,
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the wall clock, used for deadlines and timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) CreateGame(ctx context.Context, params CreateGameParams) (uint64, error) {
	if params.Amount == 0 || params.Amount > MaxStake {
		return 0, ErrInvalidAmount
	}
	if !e.supportsToken(params.Token) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedToken, params.Token)
	}
	if params.IsPrivate == params.AccessKeyHash.IsZero() {
		return 0, ErrInvalidKeyCommitment
	}

	id, err := e.registry.Reserve(ctx)
	if err != nil {
		return 0, err
	}

	err = e.custody(ctx, func(ctx context.Context) error {
		return e.custodian.Escrow(ctx, id, params.Creator, params.Token, params.Amount)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: escrow for game %d: %w", ErrCustodianFailure, id, err)
	}

	var keyHash string
	if params.IsPrivate {
		keyHash = params.AccessKeyHash.String()
	}
	game, err := e.registry.Register(ctx, id, registry.Draft{
		Token:         params.Token,
		Amount:        params.Amount,
		Creator:       params.Creator,
		IsPrivate:     params.IsPrivate,
		AccessKeyHash: keyHash,
		CreatedAt:     e.now(),
	})
	if err != nil {
		e.compensate(ctx, id, params.Creator, params.Token, params.Amount)
		return 0, err
	}

	e.notifier.Notify(notify.NewGameCreated(game.Id, game.Creator, game.Token, game.Amount, game.IsPrivate, game.CreatedAt))
	return game.Id, nil
}

func (e *Engine) JoinGame(ctx context.Context, id uint64, opponent string, suppliedKey []byte) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	game, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if game.Status != model.GameOpen {
		return fmt.Errorf("%w: game %d is %s", ErrInvalidState, id, game.Status)
	}
	now := e.now()
	if e.expired(game, now) {
		return ErrExpired
	}
	if opponent == game.Creator {
		return ErrSelfJoin
	}
	if game.IsPrivate {
		commitment, err := accesskey.ParseHash(game.AccessKeyHash)
		if err != nil {
			return err
		}
		if !commitment.Matches(suppliedKey) {
			return ErrBadKey
		}
	}

	err = e.custody(ctx, func(ctx context.Context) error {
		return e.custodian.Escrow(ctx, id, opponent, game.Token, game.Amount)
	})
	if err != nil {
		return fmt.Errorf("%w: escrow for game %d: %w", ErrCustodianFailure, id, err)
	}

	joined, err := e.registry.Update(ctx, id, func(g *model.Game) error {
		g.Opponent = &opponent
		g.JoinedAt = &now
		g.Status = model.GameJoined
		return nil
	})
	if err != nil {
		// The escrow stays recorded, so the same opponent retrying the join
		// is not charged twice.
		log.Error().Err(err).Uint64("game_id", id).Str("opponent", opponent).Msg("Join not recorded after escrow")
		return err
	}
	e.notifier.Notify(notify.NewGameJoined(id, opponent, now))

	// Both stakes are committed, so the join stands even if the request does
	// not go out. The game then reports as stalled until RetryRandomness.
	if _, err := e.requestRandomness(ctx, joined); err != nil {
		log.Error().Err(err).Uint64("game_id", id).Msg("Randomness request failed after join")
	}
	return nil
}

// OnRandomnessDelivered settles the game a request belongs to. Deliveries for
// unknown, superseded or already settled requests are ignored. The outcome is
// recorded before any payout, so a custodian failure leaves the game awaiting
// its payouts with the drawn winner fixed; redelivery or RetrySettlement pays
// that same outcome.
func (e *Engine) OnRandomnessDelivered(ctx context.Context, requestId string, words []*big.Int) error {
	located, err := e.registry.GetByRequestId(ctx, requestId)
	if errors.Is(err, registry.ErrNotFound) {
		log.Info().Str("request_id", requestId).Msg("Ignoring randomness for unknown request")
		return nil
	}
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(located.Id)
	defer unlock()

	game, err := e.load(ctx, located.Id)
	if err != nil {
		return err
	}
	if game.Status.IsTerminal() {
		log.Info().Uint64("game_id", game.Id).Str("request_id", requestId).Msg("Ignoring randomness for settled game")
		return nil
	}
	if game.Status != model.GameAwaitingRandomness || game.RandomnessRequestId == nil || *game.RandomnessRequestId != requestId {
		log.Info().Uint64("game_id", game.Id).Str("request_id", requestId).Msg("Ignoring randomness for superseded request")
		return nil
	}

	if game.HasOutcome() {
		log.Info().Uint64("game_id", game.Id).Str("request_id", requestId).Msg("Outcome already recorded, settling it")
		return e.settle(ctx, game)
	}

	word, err := randomness.FirstWord(words)
	if err != nil {
		return err
	}
	game, err = e.recordOutcome(ctx, game, word)
	if err != nil {
		return err
	}
	return e.settle(ctx, game)
}

// RetrySettlement pays out a game whose outcome is recorded but whose
// payouts did not all go through.
func (e *Engine) RetrySettlement(ctx context.Context, id uint64) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	game, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if game.Status != model.GameAwaitingRandomness || !game.HasOutcome() {
		return fmt.Errorf("%w: game %d is %s without a pending settlement", ErrInvalidState, id, game.Status)
	}

	log.Warn().Uint64("game_id", id).Msg("Retrying settlement of recorded outcome")
	return e.settle(ctx, game)
}

// ClaimTimeout refunds the creator of a game nobody joined in time. Only the
// creator may claim.
func (e *Engine) ClaimTimeout(ctx context.Context, id uint64, caller string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	game, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if game.Status != model.GameOpen {
		return fmt.Errorf("%w: game %d is %s", ErrInvalidState, id, game.Status)
	}
	now := e.now()
	if !e.expired(game, now) {
		return ErrNotExpired
	}
	if caller != game.Creator {
		return ErrNotCreator
	}

	err = e.custody(ctx, func(ctx context.Context) error {
		return e.custodian.Refund(ctx, id, game.Creator, game.Token, game.Amount)
	})
	if err != nil {
		return fmt.Errorf("%w: refund for game %d: %w", ErrCustodianFailure, id, err)
	}

	_, err = e.registry.Update(ctx, id, func(g *model.Game) error {
		g.Status = model.GameTimedOut
		g.ResolvedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	e.notifier.Notify(notify.NewGameTimeout(id, now))
	return nil
}

// RetryRandomness replaces the outstanding request of a stalled game. Any
// late delivery for the old request is ignored from then on.
func (e *Engine) RetryRandomness(ctx context.Context, id uint64) (string, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	game, err := e.load(ctx, id)
	if err != nil {
		return "", err
	}
	if game.Status != model.GameJoined && game.Status != model.GameAwaitingRandomness {
		return "", fmt.Errorf("%w: game %d is %s", ErrInvalidState, id, game.Status)
	}
	if game.HasOutcome() {
		return "", fmt.Errorf("%w: game %d", ErrOutcomeRecorded, id)
	}
	if !registry.Stalled(game, e.slaCutoff()) {
		return "", ErrNotStalled
	}

	log.Warn().Uint64("game_id", id).Msg("Re-requesting randomness for stalled game")
	return e.requestRandomness(ctx, game)
}

func (e *Engine) GetGame(ctx context.Context, id uint64) (GameView, error) {
	game, err := e.load(ctx, id)
	if err != nil {
		return GameView{}, err
	}
	return e.view(game), nil
}

// ActiveGames yields open games in creation order after the given id.
func (e *Engine) ActiveGames(ctx context.Context, afterId uint64) iter.Seq2[GameView, error] {
	return func(yield func(GameView, error) bool) {
		for game, err := range e.registry.ListOpen(ctx, afterId) {
			if err != nil {
				yield(GameView{}, err)
				return
			}
			if !yield(e.view(game), nil) {
				return
			}
		}
	}
}

func (e *Engine) StalledGames(ctx context.Context) ([]GameView, error) {
	games, err := e.registry.ListStalled(ctx, e.slaCutoff())
	if err != nil {
		return nil, err
	}
	views := make([]GameView, 0, len(games))
	for _, game := range games {
		views = append(views, e.view(game))
	}
	return views, nil
}

// UnsettledGames lists games with a recorded outcome still waiting on payouts.
func (e *Engine) UnsettledGames(ctx context.Context) ([]GameView, error) {
	games, err := e.registry.ListUnsettled(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]GameView, 0, len(games))
	for _, game := range games {
		views = append(views, e.view(game))
	}
	return views, nil
}

func (e *Engine) PlayerStats(ctx context.Context, participant string) (model.PlayerStats, error) {
	games, err := e.registry.ListResolvedFor(ctx, participant)
	if err != nil {
		return model.PlayerStats{}, err
	}

	stats := model.PlayerStats{Participant: participant}
	for _, game := range games {
		if game.Winner != nil && *game.Winner == participant {
			stats.Wins++
			stats.TotalWon += game.Payout
			continue
		}
		stats.Losses++
	}
	return stats, nil
}

// LastResult returns the most recently settled game of a participant.
func (e *Engine) LastResult(ctx context.Context, participant string) (model.GameResult, error) {
	games, err := e.registry.ListResolvedFor(ctx, participant)
	if err != nil {
		return model.GameResult{}, err
	}

	var last *model.Game
	for i := range games {
		if last == nil || games[i].ResolvedAt.After(*last.ResolvedAt) {
			last = &games[i]
		}
	}
	if last == nil {
		return model.GameResult{}, ErrNotFound
	}
	return model.GameResult{
		GameId: last.Id,
		Winner: *last.Winner,
		Loser:  last.Loser(),
		Payout: last.Payout,
	}, nil
}

// requestRandomness records a fresh request id on the game before handing it
// to the port, then stamps the time the port accepted it. The caller holds
// the game lock.
func (e *Engine) requestRandomness(ctx context.Context, game model.Game) (string, error) {
	requestId := uuid.New().String()
	_, err := e.registry.Update(ctx, game.Id, func(g *model.Game) error {
		g.Status = model.GameAwaitingRandomness
		g.RandomnessRequestId = &requestId
		g.RandomnessRequestedAt = nil
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := e.randomness.Request(ctx, requestId, game.Id); err != nil {
		return "", fmt.Errorf("%w: game %d: %w", ErrRandomnessUnavailable, game.Id, err)
	}

	requestedAt := e.now()
	_, err = e.registry.Update(ctx, game.Id, func(g *model.Game) error {
		g.RandomnessRequestedAt = &requestedAt
		return nil
	})
	if err != nil {
		return "", err
	}
	return requestId, nil
}

// recordOutcome fixes the winner and split drawn from word on the game,
// which stays awaiting randomness until settle resolves it. A treasury that
// also won takes the whole pot as payout.
func (e *Engine) recordOutcome(ctx context.Context, game model.Game, word *big.Int) (model.Game, error) {
	winner := *game.Opponent
	if randomness.IsEven(word) {
		winner = game.Creator
	}
	fee, payout := Settle(game.Pot(), e.settings.FeeBps)
	if winner == e.settings.TreasuryAccount {
		payout += fee
		fee = 0
	}

	recorded, err := e.registry.Update(ctx, game.Id, func(g *model.Game) error {
		g.Winner = &winner
		g.Payout = payout
		g.Fee = fee
		g.RandomValue = word.String()
		return nil
	})
	if err != nil {
		return model.Game{}, err
	}

	log.Info().
		Uint64("game_id", recorded.Id).
		Str("winner", winner).
		Str("random_value", recorded.RandomValue).
		Msg("Game outcome recorded")
	return recorded, nil
}

// settle pays the recorded outcome and resolves the game. Movements already
// applied by an earlier attempt are no-ops at the custodian.
func (e *Engine) settle(ctx context.Context, game model.Game) error {
	winner := *game.Winner
	if err := e.pay(ctx, game, winner, game.Fee, game.Payout); err != nil {
		return err
	}

	resolvedAt := e.now()
	resolved, err := e.registry.Update(ctx, game.Id, func(g *model.Game) error {
		g.Status = model.GameResolved
		g.ResolvedAt = &resolvedAt
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Uint64("game_id", resolved.Id).
		Str("winner", winner).
		Uint64("payout", resolved.Payout).
		Uint64("fee", resolved.Fee).
		Msg("Game resolved")
	e.notifier.Notify(notify.NewGameResolved(resolved.Id, winner, resolved.Payout, resolved.Fee, resolvedAt))
	return nil
}

// pay moves the fee to the treasury and the rest to the winner. Zero amounts
// are skipped.
func (e *Engine) pay(ctx context.Context, game model.Game, winner string, fee, payout uint64) error {
	if fee > 0 {
		err := e.custody(ctx, func(ctx context.Context) error {
			return e.custodian.Payout(ctx, game.Id, e.settings.TreasuryAccount, game.Token, fee)
		})
		if err != nil {
			return fmt.Errorf("%w: fee for game %d: %w", ErrCustodianFailure, game.Id, err)
		}
	}
	if payout > 0 {
		err := e.custody(ctx, func(ctx context.Context) error {
			return e.custodian.Payout(ctx, game.Id, winner, game.Token, payout)
		})
		if err != nil {
			return fmt.Errorf("%w: payout for game %d: %w", ErrCustodianFailure, game.Id, err)
		}
	}
	return nil
}

// compensate returns a stake whose game could not be recorded.
func (e *Engine) compensate(ctx context.Context, id uint64, participant, token string, amount uint64) {
	err := e.custody(ctx, func(ctx context.Context) error {
		return e.custodian.Refund(ctx, id, participant, token, amount)
	})
	if err != nil {
		log.Error().Err(err).Uint64("game_id", id).Str("participant", participant).Msg("Stake stranded in pool, manual refund required")
	}
}

func (e *Engine) custody(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.settings.CustodianTimeout)
	defer cancel()
	return call(ctx)
}

func (e *Engine) load(ctx context.Context, id uint64) (model.Game, error) {
	game, err := e.registry.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return model.Game{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return game, err
}

func (e *Engine) expired(game model.Game, now time.Time) bool {
	return now.Sub(game.CreatedAt) > e.settings.TimeoutDuration
}

func (e *Engine) slaCutoff() time.Time {
	return e.now().Add(-e.settings.RandomnessSla)
}

func (e *Engine) supportsToken(token string) bool {
	if token == "" {
		return false
	}
	if len(e.tokens) == 0 {
		return true
	}
	_, ok := e.tokens[token]
	return ok
}

func (e *Engine) view(game model.Game) GameView {
	now := e.now()
	return GameView{
		Game:                  game,
		ExpiresAt:             game.CreatedAt.Add(e.settings.TimeoutDuration),
		TimeoutEligible:       game.Status == model.GameOpen && e.expired(game, now),
		RandomnessUnavailable: registry.Stalled(game, now.Add(-e.settings.RandomnessSla)),
		SettlementPending:     game.Status == model.GameAwaitingRandomness && game.HasOutcome(),
	}
}
