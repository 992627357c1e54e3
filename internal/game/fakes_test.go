package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/kollektive-hackathon/coinflip-backend/internal/custody"
	"github.com/kollektive-hackathon/coinflip-backend/internal/notify"
	"github.com/kollektive-hackathon/coinflip-backend/internal/randomness"
	"github.com/kollektive-hackathon/coinflip-backend/internal/registry"
	"github.com/stretchr/testify/require"
)

const (
	creator  = "0x0000000000000a01"
	opponent = "0x0000000000000b02"
	treasury = "0x00000000000000fe"
	token    = "A.0000000000000001.USDC"

	startingBalance = 1000
)

var errUnavailable = errors.New("unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types(gameId uint64) []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()

	var types []notify.EventType
	for _, event := range n.events {
		if event.GameId == gameId {
			types = append(types, event.Type)
		}
	}
	return types
}

// flakyCustodian fails movements of one kind, optionally only for one account.
// With ackLost set, matching movements are applied before the failure is
// reported, as when a response is lost to a timeout.
type flakyCustodian struct {
	*custody.MemoryCustodian

	mu          sync.Mutex
	failKind    custody.Kind
	failAccount string
	ackLost     bool
}

func (c *flakyCustodian) set(kind custody.Kind, account string, ackLost bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failKind = kind
	c.failAccount = account
	c.ackLost = ackLost
}

func (c *flakyCustodian) failOn(kind custody.Kind, account string) {
	c.set(kind, account, false)
}

func (c *flakyCustodian) loseAckOn(kind custody.Kind, account string) {
	c.set(kind, account, true)
}

func (c *flakyCustodian) heal() {
	c.set("", "", false)
}

func (c *flakyCustodian) run(kind custody.Kind, account string, apply func() error) error {
	c.mu.Lock()
	matches := c.failKind == kind && (c.failAccount == "" || c.failAccount == account)
	ackLost := c.ackLost
	c.mu.Unlock()

	if !matches {
		return apply()
	}
	if !ackLost {
		return errUnavailable
	}
	if err := apply(); err != nil {
		return err
	}
	return context.DeadlineExceeded
}

func (c *flakyCustodian) Escrow(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.run(custody.KindEscrow, participant, func() error {
		return c.MemoryCustodian.Escrow(ctx, gameId, participant, token, amount)
	})
}

func (c *flakyCustodian) Payout(ctx context.Context, gameId uint64, recipient, token string, amount uint64) error {
	return c.run(custody.KindPayout, recipient, func() error {
		return c.MemoryCustodian.Payout(ctx, gameId, recipient, token, amount)
	})
}

func (c *flakyCustodian) Refund(ctx context.Context, gameId uint64, participant, token string, amount uint64) error {
	return c.run(custody.KindRefund, participant, func() error {
		return c.MemoryCustodian.Refund(ctx, gameId, participant, token, amount)
	})
}

// switchablePort forwards to a local coordinator unless switched off.
type switchablePort struct {
	*randomness.LocalCoordinator

	mu   sync.Mutex
	down bool
}

func (p *switchablePort) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *switchablePort) Request(ctx context.Context, requestId string, gameId uint64) error {
	p.mu.Lock()
	down := p.down
	p.mu.Unlock()
	if down {
		return errUnavailable
	}
	return p.LocalCoordinator.Request(ctx, requestId, gameId)
}

type testEnv struct {
	engine    *Engine
	registry  *registry.Registry
	custodian *flakyCustodian
	port      *switchablePort
	notifier  *recordingNotifier
	clock     *fakeClock
}

func defaultSettings() Settings {
	return Settings{
		TimeoutDuration:  30 * time.Second,
		FeeBps:           500,
		TreasuryAccount:  treasury,
		RandomnessSla:    10 * time.Minute,
		CustodianTimeout: time.Second,
	}
}

func newTestEnv(t *testing.T, configure ...func(*Settings)) *testEnv {
	t.Helper()

	settings := defaultSettings()
	for _, c := range configure {
		c(&settings)
	}

	env := &testEnv{
		registry:  registry.New(registry.NewMemoryStore()),
		custodian: &flakyCustodian{MemoryCustodian: custody.NewMemoryCustodian()},
		port:      &switchablePort{LocalCoordinator: randomness.NewLocalCoordinator()},
		notifier:  &recordingNotifier{},
		clock:     &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	engine, err := NewEngine(env.registry, env.custodian, env.port, env.notifier, settings)
	require.NoError(t, err)
	env.engine = engine.WithClock(env.clock.Now)
	env.port.Bind(env.engine)

	env.fund(t, creator, startingBalance)
	env.fund(t, opponent, startingBalance)
	return env
}

func (env *testEnv) fund(t *testing.T, account string, amount uint64) {
	t.Helper()
	require.NoError(t, env.custodian.Credit(context.Background(), account, token, amount))
}

func (env *testEnv) balance(t *testing.T, account string) uint64 {
	t.Helper()
	balance, err := env.custodian.Balance(context.Background(), account, token)
	require.NoError(t, err)
	return balance
}

func (env *testEnv) createPublic(t *testing.T, amount uint64) uint64 {
	t.Helper()
	id, err := env.engine.CreateGame(context.Background(), CreateGameParams{
		Creator: creator,
		Token:   token,
		Amount:  amount,
	})
	require.NoError(t, err)
	return id
}

func (env *testEnv) createAndJoin(t *testing.T, amount uint64) uint64 {
	t.Helper()
	id := env.createPublic(t, amount)
	require.NoError(t, env.engine.JoinGame(context.Background(), id, opponent, nil))
	return id
}

// pendingRequest returns the outstanding request id for a game.
func (env *testEnv) pendingRequest(t *testing.T, gameId uint64) string {
	t.Helper()
	for requestId, id := range env.port.Pending() {
		if id == gameId {
			return requestId
		}
	}
	require.FailNow(t, fmt.Sprintf("no pending randomness request for game %d", gameId))
	return ""
}

func (env *testEnv) fulfill(t *testing.T, gameId uint64, word int64) error {
	t.Helper()
	return env.port.Fulfill(context.Background(), env.pendingRequest(t, gameId), big.NewInt(word))
}

func address(n int) string {
	return fmt.Sprintf("0x%016x", n)
}
