// Package gateway talks to the transaction relayer that signs, submits and
// indexes marketplace contract calls on behalf of authenticated wallets.
package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

const (
	apiKeyHeader = "X-Api-Key"
	pingTimeout  = 5 * time.Second

	txStatusPending   = "pending"
	txStatusConfirmed = "confirmed"
	txStatusFailed    = "failed"
)

// Client is a chain.Reader and chain.RoleChecker over the relayer's HTTP API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	contract       chain.Address
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	logg           *logger.Logger
}

var (
	_ chain.Reader      = (*Client)(nil)
	_ chain.RoleChecker = (*Client)(nil)
)

func New(cfg config.ChainConfig, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/")
	if base == "" {
		return nil, errors.New("chain gateway url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid chain gateway url: %w", err)
	}
	if cfg.ContractAddress == "" {
		return nil, errors.New("contract address is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	poll := cfg.ConfirmPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        base,
		apiKey:         cfg.GatewayAPIKey,
		contract:       chain.Address(strings.ToLower(cfg.ContractAddress)),
		confirmTimeout: cfg.ConfirmTimeout,
		confirmPoll:    poll,
		logg:           logg,
	}, nil
}

// Contract returns the configured marketplace address.
func (c *Client) Contract() chain.Address { return c.contract }

// Writer returns a transaction writer that submits as from.
func (c *Client) Writer(from chain.Address) chain.Writer {
	return &writer{client: c, from: from}
}

// Wallet assembles a chain.Wallet for account backed by the relayer.
func (c *Client) Wallet(account chain.Address) chain.Wallet {
	return chain.Wallet{
		Account:  account,
		Contract: c.contract,
		Writer:   c.Writer(account),
		Reader:   c,
		Roles:    c,
	}
}

// Ping checks relayer health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (c *Client) ReadTierConfig(ctx context.Context, tier enums.Tier) (chain.TierConfig, error) {
	var out chain.TierConfig
	err := c.do(ctx, http.MethodGet, c.contractPath("tiers", strconv.Itoa(int(tier))), nil, &out)
	if err != nil {
		return chain.TierConfig{}, err
	}
	out.Tier = tier
	if err := out.Validate(); err != nil {
		return chain.TierConfig{}, fmt.Errorf("gateway returned invalid tier: %w", err)
	}
	return out, nil
}

func (c *Client) ReadTrack(ctx context.Context, id uint64) (chain.TrackRecord, error) {
	var out chain.TrackRecord
	err := c.do(ctx, http.MethodGet, c.contractPath("tracks", strconv.FormatUint(id, 10)), nil, &out)
	if isNotFound(err) {
		return chain.TrackRecord{}, chain.ErrTrackNotFound
	}
	return out, err
}

func (c *Client) ReadCollection(ctx context.Context, id uint64) (chain.CollectionRecord, error) {
	var out chain.CollectionRecord
	err := c.do(ctx, http.MethodGet, c.contractPath("collections", strconv.FormatUint(id, 10)), nil, &out)
	if isNotFound(err) {
		return chain.CollectionRecord{}, chain.ErrCollectionNotFound
	}
	return out, err
}

func (c *Client) CodeAt(ctx context.Context, addr chain.Address) ([]byte, error) {
	var out struct {
		Code string `json:"code"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(addr.String())+"/code", nil, &out); err != nil {
		return nil, err
	}
	raw := strings.TrimPrefix(out.Code, "0x")
	if raw == "" {
		return nil, nil
	}
	code, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode contract code: %w", err)
	}
	return code, nil
}

func (c *Client) SupportsSelector(ctx context.Context, addr chain.Address, selector [4]byte) (bool, error) {
	var out struct {
		Supported bool `json:"supported"`
	}
	path := "/v1/contracts/" + url.PathEscape(addr.String()) + "/selectors/" + chain.SelectorHex(selector)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Supported, nil
}

func (c *Client) HasRole(ctx context.Context, account chain.Address, role string) (bool, error) {
	var out struct {
		HasRole bool `json:"has_role"`
	}
	path := c.contractPath("roles", url.PathEscape(role), url.PathEscape(account.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.HasRole, nil
}

func (c *Client) contractPath(parts ...string) string {
	return "/v1/contracts/" + url.PathEscape(c.contract.String()) + "/" + strings.Join(parts, "/")
}

type writer struct {
	client *Client
	from   chain.Address
}

type submitRequest struct {
	From     chain.Address `json:"from"`
	Contract chain.Address `json:"contract"`
	Method   string        `json:"method"`
	Args     any           `json:"args"`
}

type txResponse struct {
	Hash    chain.TxHash   `json:"tx_hash"`
	Status  string         `json:"status"`
	Receipt *chain.Receipt `json:"receipt,omitempty"`
}

func (w *writer) SubmitTransaction(ctx context.Context, call chain.Call) (chain.TxHash, error) {
	var out txResponse
	req := submitRequest{From: w.from, Contract: w.client.contract, Method: call.Method, Args: call.Args}
	if err := w.client.do(ctx, http.MethodPost, "/v1/transactions", req, &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", errors.New("gateway returned empty transaction hash")
	}
	return out.Hash, nil
}

// AwaitConfirmation polls the relayer until the transaction is mined or the
// confirm timeout passes.
func (w *writer) AwaitConfirmation(ctx context.Context, hash chain.TxHash) (chain.Receipt, error) {
	c := w.client
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		var out txResponse
		err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(string(hash)), nil, &out)
		switch {
		case isNotFound(err):
			return chain.Receipt{}, chain.ErrTxNotFound
		case err != nil && ctx.Err() == nil:
			if c.logg != nil {
				c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"tx_hash": hash, "error": err.Error()}), "transaction status poll failed")
			}
		case err == nil && out.Status != txStatusPending:
			if out.Receipt == nil {
				return chain.Receipt{}, fmt.Errorf("transaction %s %s without receipt", hash, out.Status)
			}
			receipt := *out.Receipt
			receipt.TxHash = hash
			if out.Status == txStatusFailed {
				receipt.Success = false
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return chain.Receipt{}, chain.ErrConfirmationTimeout
			}
			return chain.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StatusError is a non-2xx reply from the relayer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chain gateway returned %d", e.Status)
	}
	return fmt.Sprintf("chain gateway returned %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
