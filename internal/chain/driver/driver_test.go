package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/chain/gateway"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

const contract = "0x00000000000000000000000000000000000000C0"

func TestOpenMemoryGrantsPublisherRole(t *testing.T) {
	backend, err := Open(config.ChainConfig{Driver: "memory", ContractAddress: contract, PublisherRole: "ARTIST_ROLE"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, chain.Address("0x00000000000000000000000000000000000000c0"), backend.Contract())

	account := chain.Address("0x00000000000000000000000000000000000000a1")
	wallet := backend.Wallet(account)
	has, err := wallet.HasRole(context.Background(), account, "ARTIST_ROLE")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestOpenGateway(t *testing.T) {
	backend, err := Open(config.ChainConfig{Driver: "Gateway", GatewayURL: "http://relayer.local", ContractAddress: contract}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &gateway.Client{}, backend)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.ChainConfig{Driver: "ethers"}, logger.Nop())
	assert.Error(t, err)
}
