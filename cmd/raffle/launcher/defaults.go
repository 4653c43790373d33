package launcher

import (
	"time"

	"github.com/rony4d/go-opera-raffle/raffle"
)

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.
type Defaults struct {
	Network    string
	Raffle     RaffleDefaults
	Keeper     KeeperDefaults
	Simulation SimulationDefaults
	Logging    LoggingDefaults
}

// RaffleDefaults holds the contract parameters that do not depend on the
// network preset.
type RaffleDefaults struct {
	EntryFee             string //	Entry fee in wei. Kept as a string so values beyond int64 survive config files.
	RequestConfirmations uint16 //	Blocks the oracle waits before answering a request.
}

// KeeperDefaults tunes the automation trigger.
type KeeperDefaults struct {
	Cadence time.Duration //	How often the keeper checks the upkeep in real time mode.
}

// SimulationDefaults drive the in-process players and chain.
type SimulationDefaults struct {
	Players   int           //	Funded players entering every round.
	Rounds    int           //	Rounds to play before the command exits.
	Funding   string        //	Genesis balance of every player in wei (10 ether).
	BlockTime time.Duration //	Block period of the in-process chain in real time mode.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=panic, 1=fatal, 2=error, 3=warn, 4=info, 5=debug, 6=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Force ANSI colors even when stdout is not a terminal.
}

// DefaultConfig returns a fully populated Defaults instance.
func DefaultConfig() Defaults {
	return Defaults{
		Network: "hardhat",
		Raffle: RaffleDefaults{
			EntryFee:             raffle.DefaultEntryFee.String(),
			RequestConfirmations: raffle.DefaultRequestConfirmations,
		},
		Keeper: KeeperDefaults{
			Cadence: time.Second,
		},
		Simulation: SimulationDefaults{
			Players:   5,
			Rounds:    3,
			Funding:   "10000000000000000000",
			BlockTime: time.Second,
		},
		Logging: LoggingDefaults{
			Verbosity: 4,
			Format:    "text",
		},
	}
}
