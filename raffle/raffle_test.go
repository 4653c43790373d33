package raffle

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-raffle/evmcore"
)

var (
	testFee      = big.NewInt(100)
	testInterval = 60 * time.Second
	testFunding  = big.NewInt(1000)
)

// fakeCoordinator hands out sequential request ids and records every request.
type fakeCoordinator struct {
	mu       sync.Mutex
	nextID   int64
	err      error
	requests []fakeRequest
}

type fakeRequest struct {
	consumer         common.Address
	keyHash          common.Hash
	subID            uint64
	minConfirmations uint16
	callbackGasLimit uint32
	numWords         uint32
}

func (f *fakeCoordinator) RequestRandomWords(consumer common.Address, keyHash common.Hash, subID uint64,
	minConfirmations uint16, callbackGasLimit uint32, numWords uint32) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	f.requests = append(f.requests, fakeRequest{consumer, keyHash, subID, minConfirmations, callbackGasLimit, numWords})
	return big.NewInt(f.nextID), nil
}

func (f *fakeCoordinator) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type testEnv struct {
	chain       *evmcore.Chain
	coordinator *fakeCoordinator
	coordAddr   common.Address
	raffle      *Raffle
	players     []common.Address
}

// newTestEnv deploys a raffle with fee=100 and interval=60s on a fresh chain
// where n players hold 1000 wei each.
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()

	players := evmcore.FakeAccounts(n + 1)[1:]
	balances := make(map[common.Address]*big.Int, n)
	for _, p := range players {
		balances[p] = new(big.Int).Set(testFunding)
	}
	chain, err := evmcore.NewChain(evmcore.FakeGenesisTime, balances)
	require.NoError(t, err)

	deployer := evmcore.FakeAccount(0)
	coordAddr := evmcore.ContractAddress(deployer, 0)

	cfg := DefaultConfig()
	cfg.EntryFee = new(big.Int).Set(testFee)
	cfg.Interval = testInterval
	cfg.KeyHash = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
	cfg.SubscriptionID = 1
	cfg.Coordinator = coordAddr

	coordinator := &fakeCoordinator{}
	r, err := New(evmcore.ContractAddress(deployer, 1), cfg, Deps{
		Coordinator: coordinator,
		Ledger:      chain,
		Clock:       chain,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)

	return &testEnv{
		chain:       chain,
		coordinator: coordinator,
		coordAddr:   coordAddr,
		raffle:      r,
		players:     players,
	}
}

// closeRound enters every given player, advances past the interval and
// closes the round, returning the request id.
func (env *testEnv) closeRound(t *testing.T, players ...common.Address) *big.Int {
	t.Helper()
	for _, p := range players {
		require.NoError(t, env.raffle.Enter(p, testFee))
	}
	env.chain.IncreaseTime(testInterval)
	id, err := env.raffle.PerformUpkeep(nil)
	require.NoError(t, err)
	return id
}

func TestNew(t *testing.T) {
	env := newTestEnv(t, 0)
	r := env.raffle

	require.Equal(t, Open, r.State())
	require.Zero(t, r.PlayerCount())
	require.Equal(t, common.Address{}, r.RecentWinner())
	require.Nil(t, r.RequestID())
	require.Equal(t, evmcore.FakeGenesisTime, r.LastTimeStamp())
	require.Equal(t, testFee, r.EntryFee())
	require.Equal(t, testInterval, r.Interval())
	require.Equal(t, DefaultCallbackGasLimit, r.CallbackGasLimit())
	require.Equal(t, DefaultNumWords, r.NumWords())
	require.Equal(t, DefaultRequestConfirmations, r.RequestConfirmations())
	require.Equal(t, env.coordAddr, r.Coordinator())
	require.Equal(t, uint64(1), r.SubscriptionID())
	require.Zero(t, r.Round())
	require.Zero(t, r.Balance().Sign())

	_, err := r.Player(0)
	require.Error(t, err)
}

func TestNew_rejectsBadInput(t *testing.T) {
	chain := evmcore.MustNewChain(evmcore.FakeGenesisTime, nil)
	deps := Deps{Coordinator: &fakeCoordinator{}, Ledger: chain, Clock: chain}

	_, err := New(common.Address{1}, DefaultConfig(), deps)
	require.ErrorIs(t, err, errNoCoordinator)

	cfg := DefaultConfig()
	cfg.Coordinator = common.Address{2}
	_, err = New(common.Address{1}, cfg, Deps{Ledger: chain, Clock: chain})
	require.Error(t, err)
}

func TestEnter_registryOrder(t *testing.T) {
	env := newTestEnv(t, 5)

	for i, p := range env.players {
		require.NoError(t, env.raffle.Enter(p, testFee))
		require.Equal(t, i+1, env.raffle.PlayerCount())
	}

	require.Equal(t, env.players, env.raffle.Players())
	for i, p := range env.players {
		got, err := env.raffle.Player(i)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
	require.Equal(t, new(big.Int).Mul(testFee, big.NewInt(5)), env.raffle.Balance())
}

func TestEnter_samePlayerTwice(t *testing.T) {
	env := newTestEnv(t, 1)
	p := env.players[0]

	require.NoError(t, env.raffle.Enter(p, testFee))
	require.NoError(t, env.raffle.Enter(p, testFee))
	require.Equal(t, []common.Address{p, p}, env.raffle.Players())
}

func TestEnter_insufficientFee(t *testing.T) {
	for _, tt := range []struct {
		name  string
		value *big.Int
	}{
		{"nil", nil},
		{"zero", big.NewInt(0)},
		{"one wei short", big.NewInt(99)},
		{"one wei", big.NewInt(1)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			p := env.players[0]

			err := env.raffle.Enter(p, tt.value)
			require.ErrorIs(t, err, ErrInsufficientFee)

			var feeErr *InsufficientEntryFeeError
			require.True(t, errors.As(err, &feeErr))
			require.NotNil(t, feeErr.Sent)

			require.Zero(t, env.raffle.PlayerCount())
			require.Equal(t, testFunding, env.chain.Balance(p))
			require.Zero(t, env.raffle.Balance().Sign())
		})
	}
}

func TestEnter_overpaymentStaysInPool(t *testing.T) {
	env := newTestEnv(t, 1)
	p := env.players[0]

	require.NoError(t, env.raffle.Enter(p, big.NewInt(250)))
	require.Equal(t, big.NewInt(250), env.raffle.Balance())
	require.Equal(t, big.NewInt(750), env.chain.Balance(p))
}

func TestEnter_paymentFails(t *testing.T) {
	env := newTestEnv(t, 1)
	broke := common.HexToAddress("0xdead")

	err := env.raffle.Enter(broke, testFee)
	require.ErrorIs(t, err, vm.ErrInsufficientBalance)
	require.Zero(t, env.raffle.PlayerCount())
}

func TestEnter_rejectedWhileAwaitingRandomness(t *testing.T) {
	env := newTestEnv(t, 2)
	env.closeRound(t, env.players[0])

	err := env.raffle.Enter(env.players[1], testFee)
	require.ErrorIs(t, err, ErrRoundNotOpen)
	require.Equal(t, 1, env.raffle.PlayerCount())
	require.Equal(t, testFunding, env.chain.Balance(env.players[1]))

	// the fee is checked before the state
	err = env.raffle.Enter(env.players[1], big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientFee)
}

func TestCheckUpkeep(t *testing.T) {
	for _, tt := range []struct {
		name    string
		enter   int
		advance time.Duration
		close   bool
		want    bool
	}{
		{"nothing", 0, 0, false, false},
		{"no players after interval", 0, 2 * testInterval, false, false},
		{"players before interval", 1, testInterval - time.Second, false, false},
		{"players exactly at interval", 1, testInterval, false, true},
		{"players well after interval", 3, 10 * testInterval, false, true},
		{"awaiting randomness", 1, testInterval, true, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 3)
			for _, p := range env.players[:tt.enter] {
				require.NoError(t, env.raffle.Enter(p, testFee))
			}
			env.chain.IncreaseTime(tt.advance)
			if tt.close {
				_, err := env.raffle.PerformUpkeep(nil)
				require.NoError(t, err)
			}

			needed, data := env.raffle.CheckUpkeep(nil)
			require.Equal(t, tt.want, needed)
			require.Empty(t, data)
		})
	}
}

func TestCheckUpkeep_noBalance(t *testing.T) {
	env := newTestEnv(t, 1)
	p := env.players[0]
	require.NoError(t, env.raffle.Enter(p, testFee))
	env.chain.IncreaseTime(testInterval)

	env.chain.SetBalance(env.raffle.Address(), new(big.Int))
	needed, _ := env.raffle.CheckUpkeep(nil)
	require.False(t, needed)
}

func TestCheckUpkeep_hasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, 1)
	require.NoError(t, env.raffle.Enter(env.players[0], testFee))
	env.chain.IncreaseTime(testInterval)

	for i := 0; i < 10; i++ {
		needed, _ := env.raffle.CheckUpkeep([]byte{0x01})
		require.True(t, needed)
	}
	require.Equal(t, Open, env.raffle.State())
	require.Equal(t, evmcore.FakeGenesisTime, env.raffle.LastTimeStamp())
	require.Zero(t, env.coordinator.requestCount())
}

func TestPerformUpkeep(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.closeRound(t, env.players...)

	require.Equal(t, big.NewInt(1), id)
	require.Equal(t, AwaitingRandomness, env.raffle.State())
	require.Equal(t, id, env.raffle.RequestID())

	require.Len(t, env.coordinator.requests, 1)
	req := env.coordinator.requests[0]
	require.Equal(t, env.raffle.Address(), req.consumer)
	require.Equal(t, env.raffle.KeyHash(), req.keyHash)
	require.Equal(t, uint64(1), req.subID)
	require.Equal(t, DefaultRequestConfirmations, req.minConfirmations)
	require.Equal(t, DefaultCallbackGasLimit, req.callbackGasLimit)
	require.Equal(t, DefaultNumWords, req.numWords)
}

func TestPerformUpkeep_atMostOneOutstandingRequest(t *testing.T) {
	env := newTestEnv(t, 1)
	env.closeRound(t, env.players[0])

	env.chain.IncreaseTime(testInterval)
	_, err := env.raffle.PerformUpkeep(nil)
	require.ErrorIs(t, err, ErrUpkeepNotNeeded)

	var notNeeded *UpkeepNotNeededError
	require.True(t, errors.As(err, &notNeeded))
	require.Equal(t, AwaitingRandomness, notNeeded.State)
	require.Equal(t, uint64(1), notNeeded.PlayerCount)
	require.Equal(t, testFee, notNeeded.Balance)
	require.Equal(t, env.chain.Now(), notNeeded.Timestamp)

	require.Equal(t, 1, env.coordinator.requestCount())
	require.Equal(t, big.NewInt(1), env.raffle.RequestID())
}

func TestPerformUpkeep_coordinatorFailureKeepsRoundOpen(t *testing.T) {
	env := newTestEnv(t, 1)
	require.NoError(t, env.raffle.Enter(env.players[0], testFee))
	env.chain.IncreaseTime(testInterval)

	oracleDown := errors.New("subscription not funded")
	env.coordinator.err = oracleDown

	_, err := env.raffle.PerformUpkeep(nil)
	require.ErrorIs(t, err, oracleDown)
	require.Equal(t, Open, env.raffle.State())
	require.Nil(t, env.raffle.RequestID())

	env.coordinator.err = nil
	_, err = env.raffle.PerformUpkeep(nil)
	require.NoError(t, err)
}

func TestRawFulfillRandomWords_unauthorizedCaller(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.closeRound(t, env.players[0])

	err := env.raffle.RawFulfillRandomWords(env.players[0], id, []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnauthorizedCaller)

	var unauthorized *UnauthorizedCallerError
	require.True(t, errors.As(err, &unauthorized))
	require.Equal(t, env.players[0], unauthorized.Have)
	require.Equal(t, env.coordAddr, unauthorized.Want)

	require.Equal(t, AwaitingRandomness, env.raffle.State())
}

func TestRawFulfillRandomWords_unknownRequest(t *testing.T) {
	env := newTestEnv(t, 2)

	// nothing outstanding
	err := env.raffle.RawFulfillRandomWords(env.coordAddr, big.NewInt(1), []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnknownRequest)

	id := env.closeRound(t, env.players...)
	pool := env.raffle.Balance()

	for _, other := range []*big.Int{nil, big.NewInt(0), new(big.Int).Add(id, big.NewInt(1)), big.NewInt(-1)} {
		err := env.raffle.RawFulfillRandomWords(env.coordAddr, other, []*big.Int{big.NewInt(7)})
		require.ErrorIs(t, err, ErrUnknownRequest)

		require.Equal(t, env.players, env.raffle.Players())
		require.Equal(t, pool, env.raffle.Balance())
		require.Equal(t, common.Address{}, env.raffle.RecentWinner())
		require.Equal(t, AwaitingRandomness, env.raffle.State())
	}
}

func TestRawFulfillRandomWords_noWords(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.closeRound(t, env.players[0])

	require.ErrorIs(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, nil), ErrNoRandomWords)
	require.ErrorIs(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{nil}), ErrNoRandomWords)
	require.Equal(t, AwaitingRandomness, env.raffle.State())
}

func TestRawFulfillRandomWords_payoutFailure(t *testing.T) {
	env := newTestEnv(t, 1)
	winner := env.players[0]
	id := env.closeRound(t, winner)

	env.chain.SetRevertOnReceive(winner, true)
	err := env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(3)})
	require.ErrorIs(t, err, ErrPayoutFailed)
	require.ErrorIs(t, err, vm.ErrExecutionReverted)

	var payout *PayoutFailedError
	require.True(t, errors.As(err, &payout))
	require.Equal(t, winner, payout.Winner)
	require.Equal(t, testFee, payout.Amount)

	require.Equal(t, AwaitingRandomness, env.raffle.State())
	require.Equal(t, 1, env.raffle.PlayerCount())
	require.Equal(t, common.Address{}, env.raffle.RecentWinner())
	require.Equal(t, testFee, env.raffle.Balance())
	require.Equal(t, id, env.raffle.RequestID())

	// the same request can be delivered again once the winner accepts funds
	env.chain.SetRevertOnReceive(winner, false)
	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(3)}))
	require.Equal(t, winner, env.raffle.RecentWinner())
}

func TestRawFulfillRandomWords_resetsRound(t *testing.T) {
	for _, word := range []int64{0, 1, 2, 3, 4, 5, 12345, 1 << 40} {
		env := newTestEnv(t, 4)
		id := env.closeRound(t, env.players...)
		previous := env.raffle.Players()
		env.chain.IncreaseTime(time.Hour)
		fulfilledAt := env.chain.Now()

		require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(word)}))

		want := previous[word%int64(len(previous))]
		assert.Equal(t, want, env.raffle.RecentWinner())
		assert.Zero(t, env.raffle.PlayerCount())
		assert.Equal(t, Open, env.raffle.State())
		assert.Zero(t, env.raffle.Balance().Sign())
		assert.Nil(t, env.raffle.RequestID())
		assert.Equal(t, fulfilledAt, env.raffle.LastTimeStamp())
		assert.Equal(t, uint64(1), env.raffle.Round())
	}
}

func TestRawFulfillRandomWords_noPlayers(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.closeRound(t, env.players[0])

	env.raffle.mu.Lock()
	env.raffle.players = nil
	env.raffle.mu.Unlock()

	err := env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrNoPlayers)
	require.Equal(t, AwaitingRandomness, env.raffle.State())
	require.Equal(t, id, env.raffle.RequestID())
	require.Equal(t, testFee, env.raffle.Balance())
}

func TestRawFulfillRandomWords_largeWord(t *testing.T) {
	env := newTestEnv(t, 3)
	id := env.closeRound(t, env.players...)

	// 2^256 - 1 mod 3 == 0
	word := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{word, big.NewInt(1)}))
	require.Equal(t, env.players[0], env.raffle.RecentWinner())
}

func TestRawFulfillRandomWords_duplicateDelivery(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.closeRound(t, env.players[0])

	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(1)}))
	err := env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnknownRequest)
}

// Scenario A: one entrant wins their own fee back.
func TestScenario_singleEntrant(t *testing.T) {
	env := newTestEnv(t, 1)
	entrant := env.players[0]

	require.NoError(t, env.raffle.Enter(entrant, testFee))
	env.chain.IncreaseTime(60 * time.Second)

	needed, _ := env.raffle.CheckUpkeep(nil)
	require.True(t, needed)

	id, err := env.raffle.PerformUpkeep(nil)
	require.NoError(t, err)

	before := env.chain.Balance(entrant)
	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(12345)}))

	require.Equal(t, entrant, env.raffle.RecentWinner())
	require.Equal(t, new(big.Int).Add(before, testFee), env.chain.Balance(entrant))
	require.Zero(t, env.raffle.PlayerCount())
}

// Scenario B: an empty round never closes.
func TestScenario_noEntrants(t *testing.T) {
	env := newTestEnv(t, 0)
	env.chain.IncreaseTime(60 * time.Second)

	needed, _ := env.raffle.CheckUpkeep(nil)
	require.False(t, needed)

	_, err := env.raffle.PerformUpkeep(nil)
	require.ErrorIs(t, err, ErrUpkeepNotNeeded)
	require.Zero(t, env.coordinator.requestCount())
}

// Scenario C: word 7 over two entrants selects the second.
func TestScenario_twoEntrants(t *testing.T) {
	env := newTestEnv(t, 2)
	a, b := env.players[0], env.players[1]

	id := env.closeRound(t, a, b)
	aBefore, bBefore := env.chain.Balance(a), env.chain.Balance(b)

	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(7)}))

	require.Equal(t, b, env.raffle.RecentWinner())
	require.Equal(t, new(big.Int).Add(bBefore, big.NewInt(200)), env.chain.Balance(b))
	require.Equal(t, aBefore, env.chain.Balance(a))
}

// Scenario D: closing before the interval elapsed fails without effect.
func TestScenario_closeTooEarly(t *testing.T) {
	env := newTestEnv(t, 1)
	require.NoError(t, env.raffle.Enter(env.players[0], testFee))
	env.chain.IncreaseTime(30 * time.Second)

	_, err := env.raffle.PerformUpkeep(nil)
	require.ErrorIs(t, err, ErrUpkeepNotNeeded)
	require.Equal(t, 1, env.raffle.PlayerCount())
	require.Equal(t, Open, env.raffle.State())
}

func TestMultipleRounds(t *testing.T) {
	env := newTestEnv(t, 3)

	for round := 0; round < 3; round++ {
		id := env.closeRound(t, env.players...)
		require.Equal(t, big.NewInt(int64(round+1)), id)
		require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(int64(round))}))
		require.Equal(t, env.players[round], env.raffle.RecentWinner())
		require.Equal(t, uint64(round+1), env.raffle.Round())
	}

	// every player won one pot of three fees after paying three fees
	for _, p := range env.players {
		require.Equal(t, testFunding, env.chain.Balance(p))
	}
}

func TestConcurrentEntries(t *testing.T) {
	env := newTestEnv(t, 8)

	var wg sync.WaitGroup
	for _, p := range env.players {
		wg.Add(1)
		go func(p common.Address) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				assert.NoError(t, env.raffle.Enter(p, testFee))
				env.raffle.CheckUpkeep(nil)
			}
		}(p)
	}
	wg.Wait()

	require.Equal(t, 40, env.raffle.PlayerCount())
	require.Equal(t, new(big.Int).Mul(testFee, big.NewInt(40)), env.raffle.Balance())
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, 2)

	entered := make(chan Entered, 4)
	requested := make(chan RandomnessRequested, 1)
	picked := make(chan WinnerPicked, 1)
	defer env.raffle.SubscribeEntered(entered).Unsubscribe()
	defer env.raffle.SubscribeRequested(requested).Unsubscribe()
	defer env.raffle.SubscribeWinnerPicked(picked).Unsubscribe()

	id := env.closeRound(t, env.players...)

	for _, p := range env.players {
		ev := <-entered
		require.Equal(t, p, ev.Player)
		require.Equal(t, testFee, ev.Value)
		require.Zero(t, ev.Round)
	}

	req := <-requested
	require.Equal(t, id, req.RequestID)
	require.Equal(t, env.raffle.KeyHash(), req.KeyHash)
	require.Equal(t, DefaultNumWords, req.NumWords)

	require.NoError(t, env.raffle.RawFulfillRandomWords(env.coordAddr, id, []*big.Int{big.NewInt(1)}))
	ev := <-picked
	require.Equal(t, env.players[1], ev.Winner)
	require.Equal(t, id, ev.RequestID)
	require.Equal(t, big.NewInt(200), ev.Prize)
	require.Equal(t, 2, ev.Players)
	require.Zero(t, ev.Round)
	require.Equal(t, env.chain.Now(), ev.Time)
}

func TestNotifications_notSentOnFailure(t *testing.T) {
	env := newTestEnv(t, 1)

	entered := make(chan Entered, 1)
	defer env.raffle.SubscribeEntered(entered).Unsubscribe()

	require.Error(t, env.raffle.Enter(env.players[0], big.NewInt(1)))
	select {
	case ev := <-entered:
		t.Fatalf("unexpected notification %+v", ev)
	default:
	}
}

func TestClose_endsSubscriptions(t *testing.T) {
	env := newTestEnv(t, 0)
	sub := env.raffle.SubscribeWinnerPicked(make(chan WinnerPicked))
	env.raffle.Close()

	select {
	case <-sub.Err():
	case <-time.After(time.Second):
		t.Fatal("subscription still active after Close")
	}
}
