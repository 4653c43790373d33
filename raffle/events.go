package raffle

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-opera-raffle/inter"
)

// EventsABI is the JSON ABI of the events the raffle contract emits:
//   - RaffleEntered(address indexed player)
//   - RequestedRaffleWinner(uint256 indexed requestId)
//   - WinnerPicked(address indexed winner)
const EventsABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"player","type":"address"}],"name":"RaffleEntered","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"requestId","type":"uint256"}],"name":"RequestedRaffleWinner","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"winner","type":"address"}],"name":"WinnerPicked","type":"event"}
]`

var (
	enteredEventID   common.Hash // RaffleEntered(address)
	requestedEventID common.Hash // RequestedRaffleWinner(uint256)
	winnerEventID    common.Hash // WinnerPicked(address)
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(EventsABI))
	if err != nil {
		panic(err)
	}

	for name, id := range map[string]*common.Hash{
		"RaffleEntered":         &enteredEventID,
		"RequestedRaffleWinner": &requestedEventID,
		"WinnerPicked":          &winnerEventID,
	} {
		ev, ok := parsed.Events[name]
		if !ok {
			panic("unknown raffle event " + name)
		}
		*id = ev.ID
	}
}

// Entered is sent after a participant joined the current round.
type Entered struct {
	Player common.Address
	Value  *big.Int // value tendered with the entry
	Round  uint64
}

// Log renders the notification as the contract's RaffleEntered log.
func (e Entered) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{enteredEventID, common.BytesToHash(e.Player.Bytes())},
	}
}

// RandomnessRequested is sent after a round closed and the oracle accepted
// the randomness request.
type RandomnessRequested struct {
	RequestID            *big.Int
	KeyHash              common.Hash
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Round                uint64
}

// Log renders the notification as the contract's RequestedRaffleWinner log.
func (e RandomnessRequested) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{requestedEventID, common.BigToHash(e.RequestID)},
	}
}

// WinnerPicked is sent after a fulfillment paid out the pool and reopened
// the raffle.
type WinnerPicked struct {
	Winner    common.Address
	RequestID *big.Int
	Prize     *big.Int
	Round     uint64 // the round that was just completed
	Players   int    // registry size of that round
	Time      inter.Timestamp
}

// Log renders the notification as the contract's WinnerPicked log.
func (e WinnerPicked) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{winnerEventID, common.BytesToHash(e.Winner.Bytes())},
	}
}
