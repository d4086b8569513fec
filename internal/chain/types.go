// Package chain holds the read and write surface of the marketplace contract
// as seen by the publish pipeline and the catalog.
package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// Address is a lowercase 0x-prefixed account or contract address.
type Address string

func (a Address) String() string { return string(a) }

// TxHash identifies a submitted transaction.
type TxHash string

// TierConfig is the contract's configuration for one purchase tier.
type TierConfig struct {
	Tier          enums.Tier `json:"tier"`
	DisplayName   string     `json:"display_name"`
	Price         *big.Int   `json:"price"`
	RewardPerUnit *big.Int   `json:"reward_per_unit"`
	MaxSupply     uint64     `json:"max_supply"`
	CurrentSupply uint64     `json:"current_supply"`
	StartID       uint64     `json:"start_id"`
	SaleActive    bool       `json:"sale_active"`
	MetadataURI   string     `json:"metadata_uri"`
	RoyaltyBps    uint16     `json:"royalty_bps"`
}

// Remaining is the supply still mintable.
func (t TierConfig) Remaining() uint64 {
	if t.CurrentSupply >= t.MaxSupply {
		return 0
	}
	return t.MaxSupply - t.CurrentSupply
}

// Validate checks the supply invariant and the price encoding.
func (t TierConfig) Validate() error {
	if !t.Tier.IsValid() {
		return fmt.Errorf("unknown tier %d", uint8(t.Tier))
	}
	if t.CurrentSupply > t.MaxSupply {
		return fmt.Errorf("tier %s: current supply %d exceeds max supply %d", t.Tier, t.CurrentSupply, t.MaxSupply)
	}
	if t.Price != nil && t.Price.Sign() < 0 {
		return fmt.Errorf("tier %s: negative price", t.Tier)
	}
	return nil
}

// TokenURI expands the tier's metadata template for tokenID.
func (t TierConfig) TokenURI(tokenID uint64) string {
	if t.MetadataURI == "" {
		return ""
	}
	return strings.ReplaceAll(t.MetadataURI, "{id}", strconv.FormatUint(tokenID, 10))
}

// TrackRecord is a published track as stored on chain.
type TrackRecord struct {
	ID              uint64 `json:"id"`
	CollectionID    uint64 `json:"collection_id"`
	Title           string `json:"title"`
	AudioCID        string `json:"audio_cid"`
	DurationSeconds uint64 `json:"duration_seconds"`
	Active          bool   `json:"active"`
}

// Listed reports whether the track may appear in the catalog.
func (t TrackRecord) Listed() bool {
	return t.Active && strings.TrimSpace(t.Title) != ""
}

// CollectionRecord is an album as stored on chain.
type CollectionRecord struct {
	ID          uint64  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Description string  `json:"description"`
	CoverCID    string  `json:"cover_cid"`
	Genre       string  `json:"genre"`
	Finalized   bool    `json:"finalized"`
	Owner       Address `json:"owner"`
}
