// Package driver selects the chain backend named by configuration.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/chain/gateway"
	"github.com/angelmondragon/soundmint-backend/internal/chain/memchain"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

// Backend is what the services need from a chain: reads for the catalog and
// per-account wallets for publishing.
type Backend interface {
	chain.Reader
	Wallet(account chain.Address) chain.Wallet
	Contract() chain.Address
}

// Open returns the gateway client or, outside production, an in-memory
// ledger that grants the publisher role to every wallet it sees.
func Open(cfg config.ChainConfig, logg *logger.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.ChainDriverGateway:
		return gateway.New(cfg, logg)
	case config.ChainDriverMemory:
		ledger := memchain.New(chain.Address(strings.ToLower(strings.TrimSpace(cfg.ContractAddress))))
		if logg != nil {
			logg.Warn(logg.WithField(context.Background(), "contract", ledger.Contract().String()), "using in-memory chain ledger")
		}
		return &devLedger{Ledger: ledger, role: cfg.PublisherRole}, nil
	default:
		return nil, fmt.Errorf("unknown chain driver %q", cfg.Driver)
	}
}

type devLedger struct {
	*memchain.Ledger
	role string
}

func (d *devLedger) Wallet(account chain.Address) chain.Wallet {
	if d.role != "" && account != "" {
		d.GrantRole(account, d.role)
	}
	return d.Ledger.Wallet(account)
}
