package catalog

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/chain/memchain"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

func TestNewFromConfigServesLedger(t *testing.T) {
	ledger := memchain.New(testContract)
	ledger.SeedTrack(chain.TrackRecord{Title: "Song", AudioCID: "cid", Active: true})
	require.NoError(t, ledger.SetTier(chain.TierConfig{Tier: enums.TierGold, Price: big.NewInt(1), MaxSupply: 2, SaleActive: true}))
	require.NoError(t, ledger.Mint(enums.TierGold, 1))

	svc, err := NewFromConfig(SetupParams{
		Catalog: config.CatalogConfig{MaxProbe: 5, DisplayCap: 20, USDRate: "2500"},
		Chain:   config.ChainConfig{ReadRPS: 100, ReadBurst: 5, ReadConcurrency: 2},
		Reader:  ledger,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)

	editions, err := svc.GetCatalog(context.Background(), Filter{Available: true})
	require.NoError(t, err)
	require.Len(t, editions, 1)
	assert.EqualValues(t, 1, editions[0].Remaining)
}

func TestNewFromConfigRejectsBadRate(t *testing.T) {
	_, err := NewFromConfig(SetupParams{
		Catalog: config.CatalogConfig{MaxProbe: 5, DisplayCap: 20, USDRate: "lots"},
		Reader:  memchain.New(testContract),
		Logger:  logger.Nop(),
	})
	assert.Error(t, err)
}
