package raffle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-opera-raffle/inter"
)

// RevertError is an error that carries the ABI-encoded custom error payload
// the raffle contract reverts with: a 4-byte selector followed by the
// encoded arguments.
type RevertError interface {
	error
	ErrorData() []byte
}

// sentinel is a comparable error with an argument-less revert payload.
type sentinel struct {
	msg       string
	signature string
}

func (e *sentinel) Error() string     { return e.msg }
func (e *sentinel) ErrorData() []byte { return selector(e.signature) }

// Sentinel errors. Every rejection by the raffle's own guards matches exactly
// one of them with errors.Is. Ledger and coordinator failures are wrapped and
// returned as they are.
var (
	ErrInsufficientFee    error = &sentinel{"insufficient entry fee", "Raffle__InsufficientEntryFee(uint256)"}
	ErrRoundNotOpen       error = &sentinel{"raffle is not open", "Raffle__NotOpen()"}
	ErrUpkeepNotNeeded    error = &sentinel{"upkeep not needed", "Raffle__UpkeepNotNeeded(uint8,uint256,uint256,uint256)"}
	ErrUnauthorizedCaller error = &sentinel{"only the coordinator can fulfill", "OnlyCoordinatorCanFulfill(address,address)"}
	ErrUnknownRequest     error = &sentinel{"unknown randomness request", "Raffle__UnknownRequest(uint256)"}
	ErrPayoutFailed       error = &sentinel{"transfer to winner failed", "Raffle__TransferFailed()"}
	ErrNoRandomWords      error = &sentinel{"no random words delivered", "Raffle__NoRandomWords()"}
	ErrNoPlayers          error = &sentinel{"no players to pick a winner from", "Raffle__NoPlayers()"}
)

var (
	uint8Ty, _   = abi.NewType("uint8", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	addressTy, _ = abi.NewType("address", "", nil)
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// revertData encodes a custom error. Packing only fails on a type mismatch
// between args and vals, in which case the bare selector is returned.
func revertData(signature string, args abi.Arguments, vals ...interface{}) []byte {
	sel := selector(signature)
	packed, err := args.Pack(vals...)
	if err != nil {
		return sel
	}
	return append(sel, packed...)
}

// InsufficientEntryFeeError is returned by Enter when the tendered value is
// below the entry fee.
type InsufficientEntryFeeError struct {
	Sent *big.Int
}

func (e *InsufficientEntryFeeError) Error() string {
	return fmt.Sprintf("%s: sent %s", ErrInsufficientFee, e.Sent)
}

func (e *InsufficientEntryFeeError) Is(target error) bool { return target == ErrInsufficientFee }

func (e *InsufficientEntryFeeError) ErrorData() []byte {
	return revertData("Raffle__InsufficientEntryFee(uint256)", abi.Arguments{{Type: uint256Ty}}, e.Sent)
}

// UpkeepNotNeededError is returned by PerformUpkeep when the upkeep predicate
// does not hold. It carries the inputs of the predicate at evaluation time.
type UpkeepNotNeededError struct {
	State       State
	PlayerCount uint64
	Timestamp   inter.Timestamp
	Balance     *big.Int
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%s: state=%s players=%d timestamp=%d balance=%s",
		ErrUpkeepNotNeeded, e.State, e.PlayerCount, e.Timestamp, e.Balance)
}

func (e *UpkeepNotNeededError) Is(target error) bool { return target == ErrUpkeepNotNeeded }

func (e *UpkeepNotNeededError) ErrorData() []byte {
	args := abi.Arguments{{Type: uint8Ty}, {Type: uint256Ty}, {Type: uint256Ty}, {Type: uint256Ty}}
	return revertData("Raffle__UpkeepNotNeeded(uint8,uint256,uint256,uint256)", args,
		uint8(e.State),
		new(big.Int).SetUint64(e.PlayerCount),
		new(big.Int).SetUint64(uint64(e.Timestamp)),
		e.Balance,
	)
}

// UnauthorizedCallerError is returned when anyone but the configured
// coordinator delivers randomness.
type UnauthorizedCallerError struct {
	Have common.Address
	Want common.Address
}

func (e *UnauthorizedCallerError) Error() string {
	return fmt.Sprintf("%s: have %s, want %s", ErrUnauthorizedCaller, e.Have.Hex(), e.Want.Hex())
}

func (e *UnauthorizedCallerError) Is(target error) bool { return target == ErrUnauthorizedCaller }

func (e *UnauthorizedCallerError) ErrorData() []byte {
	return revertData("OnlyCoordinatorCanFulfill(address,address)",
		abi.Arguments{{Type: addressTy}, {Type: addressTy}}, e.Have, e.Want)
}

// UnknownRequestError is returned for a fulfillment whose request id is not
// the outstanding one.
type UnknownRequestError struct {
	RequestID *big.Int
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownRequest, e.RequestID)
}

func (e *UnknownRequestError) Is(target error) bool { return target == ErrUnknownRequest }

func (e *UnknownRequestError) ErrorData() []byte {
	id := e.RequestID
	if id == nil {
		id = new(big.Int)
	}
	return revertData("Raffle__UnknownRequest(uint256)", abi.Arguments{{Type: uint256Ty}}, id)
}

// PayoutFailedError is returned when the prize cannot be transferred to the
// winner. The round stays AwaitingRandomness.
type PayoutFailedError struct {
	Winner common.Address
	Amount *big.Int
	Err    error
}

func (e *PayoutFailedError) Error() string {
	return fmt.Sprintf("%s: %s to %s: %v", ErrPayoutFailed, e.Amount, e.Winner.Hex(), e.Err)
}

func (e *PayoutFailedError) Is(target error) bool { return target == ErrPayoutFailed }

func (e *PayoutFailedError) Unwrap() error { return e.Err }

func (e *PayoutFailedError) ErrorData() []byte { return selector("Raffle__TransferFailed()") }
