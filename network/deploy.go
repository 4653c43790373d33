package network

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/evmcore"
	"github.com/rony4d/go-opera-raffle/raffle"
	"github.com/rony4d/go-opera-raffle/vrf"
)

// ErrRemoteNetwork is returned when an in-process deployment is requested
// for a preset that points at a live coordinator.
var ErrRemoteNetwork = errors.New("not a local network")

// Deployment is a raffle wired to a local coordinator.
type Deployment struct {
	Preset         Preset
	Chain          *evmcore.Chain
	Deployer       common.Address
	Coordinator    *vrf.Coordinator
	SubscriptionID uint64
	Raffle         *raffle.Raffle
}

// Deploy runs the local deploy pipeline on chain: deploy the coordinator,
// open and fund a subscription, deploy the raffle with cfg and the preset
// applied, register the raffle as a consumer and wait for the preset's
// block confirmations.
func Deploy(chain *evmcore.Chain, deployer common.Address, preset Preset, cfg raffle.Config) (*Deployment, error) {
	if !preset.IsLocal {
		return nil, fmt.Errorf("deploy to %s: %w", preset.Name, ErrRemoteNetwork)
	}

	log.WithField("network", preset.Name).Info("Development network detected, deploying mocks")

	coordinator := vrf.NewCoordinator(
		evmcore.ContractAddress(deployer, 0),
		vrf.Config{BaseFee: preset.BaseFee, GasPriceLink: preset.GasPriceLink},
		chain,
	)

	subID := coordinator.CreateSubscription(deployer)
	if preset.SubscriptionFund != nil {
		if err := coordinator.FundSubscription(subID, preset.SubscriptionFund); err != nil {
			return nil, fmt.Errorf("fund subscription: %w", err)
		}
	}

	cfg = cfg.Copy()
	ApplyPreset(&cfg, preset)
	cfg.Coordinator = coordinator.Address()
	cfg.SubscriptionID = subID

	r, err := raffle.New(evmcore.ContractAddress(deployer, 1), cfg, raffle.Deps{
		Coordinator: coordinator,
		Ledger:      chain,
		Clock:       chain,
	})
	if err != nil {
		return nil, fmt.Errorf("deploy raffle: %w", err)
	}

	if err := coordinator.AddConsumer(subID, r); err != nil {
		return nil, fmt.Errorf("add consumer: %w", err)
	}

	for i := uint64(0); i < preset.BlockConfirmations; i++ {
		chain.Mine()
	}

	log.WithFields(log.Fields{
		"network":     preset.Name,
		"raffle":      r.Address().Hex(),
		"coordinator": coordinator.Address().Hex(),
		"subId":       subID,
		"block":       chain.BlockNumber(),
	}).Info("Raffle deployed and registered as consumer")

	return &Deployment{
		Preset:         preset,
		Chain:          chain,
		Deployer:       deployer,
		Coordinator:    coordinator,
		SubscriptionID: subID,
		Raffle:         r,
	}, nil
}

// Close releases the subscriptions of the deployed contracts.
func (d *Deployment) Close() {
	d.Raffle.Close()
	d.Coordinator.Close()
}
