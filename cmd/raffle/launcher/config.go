// This file maps the config file and CLI context to the launcher config.

package launcher

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-raffle/keeper"
	"github.com/rony4d/go-opera-raffle/network"
	"github.com/rony4d/go-opera-raffle/raffle"
)

// Config aggregates everything the launcher needs. Durations are kept as
// strings ("30s", "24h") so they read naturally in TOML files.
type Config struct {
	Network    string
	Raffle     RaffleConfig
	Keeper     KeeperConfig
	Simulation SimulationConfig
	History    HistoryConfig
	Logging    LoggingConfig
}

type RaffleConfig struct {
	EntryFee             string
	Interval             string // empty selects the network preset
	CallbackGasLimit     uint32 // zero selects the network preset
	RequestConfirmations uint16
}

type KeeperConfig struct {
	Cadence string
}

type SimulationConfig struct {
	Players   int
	Rounds    int
	Funding   string
	BlockTime string
}

type HistoryConfig struct {
	Path string // empty disables the history store
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig() Config {
	def := DefaultConfig()
	return Config{
		Network: def.Network,
		Raffle: RaffleConfig{
			EntryFee:             def.Raffle.EntryFee,
			RequestConfirmations: def.Raffle.RequestConfirmations,
		},
		Keeper: KeeperConfig{
			Cadence: def.Keeper.Cadence.String(),
		},
		Simulation: SimulationConfig{
			Players:   def.Simulation.Players,
			Rounds:    def.Simulation.Rounds,
			Funding:   def.Simulation.Funding,
			BlockTime: def.Simulation.BlockTime.String(),
		},
		Logging: LoggingConfig{
			Verbosity: def.Logging.Verbosity,
			Format:    def.Logging.Format,
			Color:     def.Logging.Color,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, then CLI flag
// overrides into a single config struct and validates the result.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.String("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.History.Path != "" {
		if err := ensureDir(filepath.Dir(cfg.History.Path)); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if cfg.History.Path != "" {
		cfg.History.Path = resolvePath(cfg.History.Path)
	}
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet("network") {
		cfg.Network = ctx.String("network")
	}

	if ctx.IsSet("raffle.fee") {
		cfg.Raffle.EntryFee = ctx.String("raffle.fee")
	}
	if ctx.IsSet("raffle.interval") {
		cfg.Raffle.Interval = ctx.Duration("raffle.interval").String()
	}
	if ctx.IsSet("raffle.gaslimit") {
		cfg.Raffle.CallbackGasLimit = uint32(ctx.Uint("raffle.gaslimit"))
	}
	if ctx.IsSet("raffle.confirmations") {
		cfg.Raffle.RequestConfirmations = uint16(ctx.Uint("raffle.confirmations"))
	}

	if ctx.IsSet("keeper.cadence") {
		cfg.Keeper.Cadence = ctx.Duration("keeper.cadence").String()
	}

	if ctx.IsSet("players") {
		cfg.Simulation.Players = ctx.Int("players")
	}
	if ctx.IsSet("rounds") {
		cfg.Simulation.Rounds = ctx.Int("rounds")
	}
	if ctx.IsSet("funding") {
		cfg.Simulation.Funding = ctx.String("funding")
	}
	if ctx.IsSet("blocktime") {
		cfg.Simulation.BlockTime = ctx.Duration("blocktime").String()
	}

	if ctx.IsSet("history") {
		cfg.History.Path = resolvePath(ctx.String("history"))
	}

	if ctx.IsSet("log.format") {
		cfg.Logging.Format = ctx.String("log.format")
	}
	if ctx.IsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.Int("log.verbosity")
	}
	if ctx.IsSet("log.color") {
		cfg.Logging.Color = ctx.Bool("log.color")
	}
	if ctx.IsSet("log.sentry") {
		cfg.Logging.SentryDSN = ctx.String("log.sentry")
	}
}

// -----------------------------------------------------------------------------
// Typed views
// -----------------------------------------------------------------------------

var errBadConfig = errors.New("invalid config")

// Validate checks every value that is parsed lazily by the typed views.
func (c Config) Validate() error {
	if _, err := c.Preset(); err != nil {
		return err
	}
	if _, err := c.RaffleConfig(); err != nil {
		return err
	}
	if _, err := c.KeeperConfig(); err != nil {
		return err
	}
	if _, err := c.BlockTime(); err != nil {
		return err
	}
	if _, err := c.Funding(); err != nil {
		return err
	}
	if c.Simulation.Players < 0 || c.Simulation.Rounds < 0 {
		return fmt.Errorf("%w: negative players or rounds", errBadConfig)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: log format %q", errBadConfig, c.Logging.Format)
	}
	return nil
}

// Preset returns the selected network preset with the configured interval
// and callback gas limit applied on top.
func (c Config) Preset() (network.Preset, error) {
	preset, err := network.GetPresetByName(c.Network)
	if err != nil {
		return network.Preset{}, err
	}
	if c.Raffle.Interval != "" {
		interval, err := parseDuration("raffle interval", c.Raffle.Interval)
		if err != nil {
			return network.Preset{}, err
		}
		preset.Interval = interval
	}
	if c.Raffle.CallbackGasLimit != 0 {
		preset.CallbackGasLimit = c.Raffle.CallbackGasLimit
	}
	return preset, nil
}

// RaffleConfig returns the network independent raffle parameters. The
// coordinator and subscription are filled in by the deploy pipeline.
func (c Config) RaffleConfig() (raffle.Config, error) {
	fee, err := parseWei("entry fee", c.Raffle.EntryFee)
	if err != nil {
		return raffle.Config{}, err
	}

	cfg := raffle.DefaultConfig()
	cfg.EntryFee = fee
	cfg.RequestConfirmations = c.Raffle.RequestConfirmations
	return cfg, nil
}

// KeeperConfig returns the keeper settings.
func (c Config) KeeperConfig() (keeper.Config, error) {
	cadence, err := parseDuration("keeper cadence", c.Keeper.Cadence)
	if err != nil {
		return keeper.Config{}, err
	}
	return keeper.Config{Cadence: cadence}, nil
}

// BlockTime returns the block period of real time mode.
func (c Config) BlockTime() (time.Duration, error) {
	return parseDuration("block time", c.Simulation.BlockTime)
}

// Funding returns the genesis balance of every player.
func (c Config) Funding() (*big.Int, error) {
	return parseWei("funding", c.Simulation.Funding)
}

func parseWei(what, s string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not a 256 bit integer", errBadConfig, what, s)
	}
	return v, nil
}

func parseDuration(what, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadConfig, what, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", errBadConfig, what)
	}
	return d, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
