// Package memchain is an in-process marketplace contract used for local
// development and tests. Transactions execute when their confirmation is
// awaited, so callers observe the same submit-then-confirm ordering as on a
// real network.
package memchain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// tierIDStride separates the token id ranges of the four tiers.
const tierIDStride = 1_000_000

// Fault makes the next matching transaction fail.
type Fault struct {
	Method string
	// AtSubmit rejects the submission instead of reverting at confirmation.
	AtSubmit bool
	Reason   string
	// Timeout reports ErrConfirmationTimeout. With Applied the transaction
	// still lands, which models an ambiguous timeout.
	Timeout bool
	Applied bool
	// Reorged confirms the transaction with a successful receipt and then
	// rolls its state change back, as a chain reorganization would.
	Reorged bool
}

type pendingTx struct {
	from chain.Address
	call chain.Call
}

type Ledger struct {
	mu sync.Mutex

	contract    chain.Address
	code        []byte
	selectors   map[[4]byte]bool
	tiers       map[enums.Tier]chain.TierConfig
	collections map[uint64]chain.CollectionRecord
	tracks      []chain.TrackRecord
	roles       map[chain.Address]map[string]bool

	nextCollectionID uint64
	nonce            uint64
	block            uint64
	pending          map[chain.TxHash]pendingTx
	receipts         map[chain.TxHash]chain.Receipt
	faults           []Fault
	journal          []string
}

var (
	_ chain.Reader      = (*Ledger)(nil)
	_ chain.RoleChecker = (*Ledger)(nil)
)

// New deploys an empty contract at addr exposing every pipeline entry point.
func New(addr chain.Address) *Ledger {
	l := &Ledger{
		contract:         addr,
		code:             []byte{0x60, 0x80, 0x60, 0x40},
		selectors:        map[[4]byte]bool{},
		tiers:            map[enums.Tier]chain.TierConfig{},
		collections:      map[uint64]chain.CollectionRecord{},
		roles:            map[chain.Address]map[string]bool{},
		nextCollectionID: 1,
		pending:          map[chain.TxHash]pendingTx{},
		receipts:         map[chain.TxHash]chain.Receipt{},
	}
	for _, sig := range chain.Signatures {
		l.selectors[chain.Selector(sig)] = true
	}
	for _, tier := range enums.AllTiers {
		l.tiers[tier] = chain.TierConfig{
			Tier:          tier,
			DisplayName:   tier.DisplayName(),
			Price:         big.NewInt(0),
			RewardPerUnit: big.NewInt(0),
			StartID:       uint64(tier) * tierIDStride,
		}
	}
	return l
}

// Contract returns the address the ledger answers for.
func (l *Ledger) Contract() chain.Address { return l.contract }

// Writer returns a transaction writer that acts as from.
func (l *Ledger) Writer(from chain.Address) chain.Writer {
	return &accountWriter{ledger: l, from: from}
}

// Wallet assembles a chain.Wallet for account backed by this ledger.
func (l *Ledger) Wallet(account chain.Address) chain.Wallet {
	return chain.Wallet{
		Account:  account,
		Contract: l.contract,
		Writer:   l.Writer(account),
		Reader:   l,
		Roles:    l,
	}
}

func (l *Ledger) GrantRole(account chain.Address, role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.roles[account] == nil {
		l.roles[account] = map[string]bool{}
	}
	l.roles[account][role] = true
}

func (l *Ledger) RevokeRole(account chain.Address, role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.roles[account], role)
}

// SetTier overwrites a tier's configuration.
func (l *Ledger) SetTier(cfg chain.TierConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Tier.DisplayName()
	}
	l.tiers[cfg.Tier] = cloneTier(cfg)
	return nil
}

// Mint simulates n purchases against tier.
func (l *Ledger) Mint(tier enums.Tier, n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg, ok := l.tiers[tier]
	if !ok {
		return fmt.Errorf("unknown tier %s", tier)
	}
	if cfg.CurrentSupply+n > cfg.MaxSupply {
		return fmt.Errorf("tier %s sold out", tier)
	}
	cfg.CurrentSupply += n
	l.tiers[tier] = cfg
	return nil
}

// SeedTrack appends a track directly, bypassing transactions.
func (l *Ledger) SeedTrack(track chain.TrackRecord) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	track.ID = uint64(len(l.tracks))
	l.tracks = append(l.tracks, track)
	return track.ID
}

// SeedCollection stores a collection directly and returns its id.
func (l *Ledger) SeedCollection(rec chain.CollectionRecord) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.ID = l.nextCollectionID
	l.nextCollectionID++
	l.collections[rec.ID] = rec
	return rec.ID
}

// SetNextCollectionID fixes the id the next createCollection receives.
func (l *Ledger) SetNextCollectionID(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextCollectionID = id
}

// DeactivateTrack flips a track's active flag off.
func (l *Ledger) DeactivateTrack(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id >= uint64(len(l.tracks)) {
		return chain.ErrTrackNotFound
	}
	l.tracks[id].Active = false
	return nil
}

// RemoveCode makes the contract address look undeployed.
func (l *Ledger) RemoveCode() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.code = nil
}

// DropSelector removes an entry point from the deployed code.
func (l *Ledger) DropSelector(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.selectors, chain.Selector(chain.Signatures[method]))
}

// InjectFault queues f for the next transaction calling f.Method.
func (l *Ledger) InjectFault(f Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, f)
}

// Journal lists "submit <method>" and "confirm <method>" entries in order.
func (l *Ledger) Journal() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.journal...)
}

func (l *Ledger) ReadTierConfig(_ context.Context, tier enums.Tier) (chain.TierConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg, ok := l.tiers[tier]
	if !ok {
		return chain.TierConfig{}, fmt.Errorf("unknown tier %d", uint8(tier))
	}
	return cloneTier(cfg), nil
}

func (l *Ledger) ReadTrack(_ context.Context, id uint64) (chain.TrackRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id >= uint64(len(l.tracks)) {
		return chain.TrackRecord{}, chain.ErrTrackNotFound
	}
	return l.tracks[id], nil
}

func (l *Ledger) ReadCollection(_ context.Context, id uint64) (chain.CollectionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.collections[id]
	if !ok {
		return chain.CollectionRecord{}, chain.ErrCollectionNotFound
	}
	return rec, nil
}

func (l *Ledger) CodeAt(_ context.Context, addr chain.Address) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if addr != l.contract {
		return nil, nil
	}
	return append([]byte(nil), l.code...), nil
}

func (l *Ledger) SupportsSelector(_ context.Context, addr chain.Address, selector [4]byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return addr == l.contract && len(l.code) > 0 && l.selectors[selector], nil
}

func (l *Ledger) HasRole(_ context.Context, account chain.Address, role string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles[account][role], nil
}

type accountWriter struct {
	ledger *Ledger
	from   chain.Address
}

func (w *accountWriter) SubmitTransaction(ctx context.Context, call chain.Call) (chain.TxHash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l := w.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := chain.Signatures[call.Method]; !ok {
		return "", fmt.Errorf("unknown method %q", call.Method)
	}
	if f, ok := l.takeFault(call.Method, true); ok {
		return "", fmt.Errorf("%s", orDefault(f.Reason, "submission rejected"))
	}

	l.nonce++
	hash := chain.TxHash(fmt.Sprintf("0x%064x", l.nonce))
	l.pending[hash] = pendingTx{from: w.from, call: call}
	l.journal = append(l.journal, "submit "+call.Method)
	return hash, nil
}

func (w *accountWriter) AwaitConfirmation(ctx context.Context, hash chain.TxHash) (chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return chain.Receipt{}, err
	}
	l := w.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if receipt, ok := l.receipts[hash]; ok {
		return receipt, nil
	}
	tx, ok := l.pending[hash]
	if !ok {
		return chain.Receipt{}, chain.ErrTxNotFound
	}
	delete(l.pending, hash)

	fault, faulted := l.takeFault(tx.call.Method, false)
	l.block++
	receipt := chain.Receipt{TxHash: hash, BlockNumber: l.block}

	switch {
	case faulted && fault.Timeout:
		if fault.Applied {
			if events, err := l.apply(tx); err == nil {
				receipt.Success = true
				receipt.Events = events
				l.receipts[hash] = receipt
			}
		}
		l.journal = append(l.journal, "timeout "+tx.call.Method)
		return chain.Receipt{}, chain.ErrConfirmationTimeout
	case faulted && fault.Reorged:
		events, err := l.apply(tx)
		if err != nil {
			receipt.RevertReason = err.Error()
			break
		}
		receipt.Success = true
		receipt.Events = events
		l.rollback(tx, events)
	case faulted:
		receipt.RevertReason = orDefault(fault.Reason, "execution reverted")
	default:
		events, err := l.apply(tx)
		if err != nil {
			receipt.RevertReason = err.Error()
		} else {
			receipt.Success = true
			receipt.Events = events
		}
	}
	l.receipts[hash] = receipt
	l.journal = append(l.journal, "confirm "+tx.call.Method)
	return receipt, nil
}

func (l *Ledger) apply(tx pendingTx) ([]chain.Event, error) {
	switch args := tx.call.Args.(type) {
	case chain.CreateCollectionArgs:
		id := l.nextCollectionID
		l.nextCollectionID++
		l.collections[id] = chain.CollectionRecord{
			ID:          id,
			Title:       args.Title,
			Artist:      args.Artist,
			Description: args.Description,
			CoverCID:    args.CoverCID,
			Genre:       args.Genre,
			Owner:       tx.from,
		}
		return []chain.Event{{Name: chain.EventCollectionCreated, Args: map[string]string{"collectionId": strconv.FormatUint(id, 10)}}}, nil

	case chain.AddTrackArgs:
		rec, err := l.ownedOpenCollection(args.CollectionID, tx.from)
		if err != nil {
			return nil, err
		}
		for _, setting := range args.Tiers {
			l.configureTier(setting)
		}
		id := uint64(len(l.tracks))
		l.tracks = append(l.tracks, chain.TrackRecord{
			ID:              id,
			CollectionID:    rec.ID,
			Title:           args.Title,
			AudioCID:        args.AudioCID,
			DurationSeconds: args.DurationSeconds,
			Active:          true,
		})
		return []chain.Event{{Name: chain.EventTrackAdded, Args: map[string]string{
			"trackId":      strconv.FormatUint(id, 10),
			"collectionId": strconv.FormatUint(rec.ID, 10),
		}}}, nil

	case chain.FinalizeCollectionArgs:
		rec, err := l.ownedOpenCollection(args.CollectionID, tx.from)
		if err != nil {
			return nil, err
		}
		rec.Finalized = true
		l.collections[rec.ID] = rec
		return []chain.Event{{Name: chain.EventCollectionFinalized, Args: map[string]string{"collectionId": strconv.FormatUint(rec.ID, 10)}}}, nil

	default:
		return nil, fmt.Errorf("unsupported arguments %T for %s", tx.call.Args, tx.call.Method)
	}
}

// rollback undoes the effect of an applied transaction. Track ids stay
// assigned so later ids are unchanged.
func (l *Ledger) rollback(tx pendingTx, events []chain.Event) {
	switch args := tx.call.Args.(type) {
	case chain.CreateCollectionArgs:
		for _, ev := range events {
			if id, err := strconv.ParseUint(ev.Args["collectionId"], 10, 64); err == nil {
				delete(l.collections, id)
			}
		}
	case chain.AddTrackArgs:
		if n := len(l.tracks); n > 0 {
			l.tracks[n-1].Active = false
		}
	case chain.FinalizeCollectionArgs:
		rec := l.collections[args.CollectionID]
		rec.Finalized = false
		l.collections[args.CollectionID] = rec
	}
}

func (l *Ledger) ownedOpenCollection(id uint64, from chain.Address) (chain.CollectionRecord, error) {
	rec, ok := l.collections[id]
	switch {
	case !ok:
		return rec, fmt.Errorf("collection %d does not exist", id)
	case rec.Owner != from:
		return rec, fmt.Errorf("caller is not the collection owner")
	case rec.Finalized:
		return rec, fmt.Errorf("collection %d already finalized", id)
	}
	return rec, nil
}

// configureTier applies a track's tier setting to an unconfigured tier.
func (l *Ledger) configureTier(setting chain.TierSetting) {
	cfg, ok := l.tiers[setting.Tier]
	if !ok || cfg.MaxSupply > 0 {
		return
	}
	if setting.Price != nil {
		cfg.Price = new(big.Int).Set(setting.Price)
	}
	cfg.MaxSupply = setting.MaxSupply
	cfg.SaleActive = true
	l.tiers[setting.Tier] = cfg
}

func (l *Ledger) takeFault(method string, atSubmit bool) (Fault, bool) {
	for i, f := range l.faults {
		if f.Method == method && f.AtSubmit == atSubmit {
			l.faults = append(l.faults[:i], l.faults[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func cloneTier(cfg chain.TierConfig) chain.TierConfig {
	if cfg.Price != nil {
		cfg.Price = new(big.Int).Set(cfg.Price)
	}
	if cfg.RewardPerUnit != nil {
		cfg.RewardPerUnit = new(big.Int).Set(cfg.RewardPerUnit)
	}
	return cfg
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
