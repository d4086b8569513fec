package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

const contract = "0x00000000000000000000000000000000000000c0"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(config.ChainConfig{
		GatewayURL:      srv.URL + "/",
		GatewayAPIKey:   "key",
		ContractAddress: contract,
		ConfirmTimeout:  200 * time.Millisecond,
		ConfirmPoll:     10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRequiresURLAndContract(t *testing.T) {
	_, err := New(config.ChainConfig{ContractAddress: contract}, nil)
	require.Error(t, err)
	_, err = New(config.ChainConfig{GatewayURL: "http://relayer"}, nil)
	require.Error(t, err)
}

func TestReadTierConfig(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contracts/"+contract+"/tiers/2", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get(apiKeyHeader))
		_, _ = w.Write([]byte(`{"display_name":"Gold","price":50000000000000000,"max_supply":100,"current_supply":10,"start_id":500,"sale_active":true}`))
	}))

	cfg, err := c.ReadTierConfig(context.Background(), enums.TierGold)
	require.NoError(t, err)
	assert.Equal(t, enums.TierGold, cfg.Tier)
	assert.Equal(t, "50000000000000000", cfg.Price.String())
	assert.EqualValues(t, 500, cfg.StartID)
}

func TestReadTierConfigRejectsBrokenInvariant(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"max_supply":1,"current_supply":5}`))
	}))
	_, err := c.ReadTierConfig(context.Background(), enums.TierBronze)
	require.Error(t, err)
}

func TestReadTrackNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	_, err := c.ReadTrack(context.Background(), 3)
	require.ErrorIs(t, err, chain.ErrTrackNotFound)
	_, err = c.ReadCollection(context.Background(), 3)
	require.ErrorIs(t, err, chain.ErrCollectionNotFound)
}

func TestDiagnosticsReads(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/code"):
			_, _ = w.Write([]byte(`{"code":"0x6080"}`))
		case strings.Contains(r.URL.Path, "/selectors/"):
			_, _ = w.Write([]byte(`{"supported":true}`))
		case strings.Contains(r.URL.Path, "/roles/ARTIST_ROLE/"):
			_, _ = w.Write([]byte(`{"has_role":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	code, err := c.CodeAt(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	ok, err := c.SupportsSelector(ctx, contract, chain.Selector(chain.Signatures[chain.MethodAddTrack]))
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := c.HasRole(ctx, "0xabc", "ARTIST_ROLE")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSubmitAndAwaitPollsUntilConfirmed(t *testing.T) {
	var polls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req submitRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, chain.Address("0xartist"), req.From)
			assert.Equal(t, chain.MethodCreateCollection, req.Method)
			_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","status":"pending"}`))
		case http.MethodGet:
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","status":"pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","status":"confirmed","receipt":{"success":true,"events":[{"name":"CollectionCreated","args":{"collectionId":"42"}}]}}`))
		}
	}))

	receipt, err := chain.SubmitAndAwait(context.Background(), c.Writer("0xartist"), chain.CreateCollectionCall(chain.CreateCollectionArgs{Title: "A"}), nil)
	require.NoError(t, err)
	id, err := chain.CollectionIDFromReceipt(receipt)
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
	assert.Equal(t, chain.TxHash("0xfeed"), receipt.TxHash)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestAwaitConfirmationTimesOut(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","status":"pending"}`))
	}))
	_, err := c.Writer("0xartist").AwaitConfirmation(context.Background(), "0xfeed")
	require.ErrorIs(t, err, chain.ErrConfirmationTimeout)
}

func TestAwaitConfirmationFailedStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","status":"failed","receipt":{"success":true,"revert_reason":"not owner"}}`))
	}))
	receipt, err := c.Writer("0xartist").AwaitConfirmation(context.Background(), "0xfeed")
	require.NoError(t, err)
	assert.False(t, receipt.Success)
	assert.Equal(t, "not owner", receipt.RevertReason)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, c.Ping(context.Background()))
}
