package catalog

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/units"
)

// Edition is one purchasable token derived from a track and a tier.
type Edition struct {
	TokenID         uint64              `json:"token_id"`
	TrackID         uint64              `json:"track_id"`
	CollectionID    uint64              `json:"collection_id"`
	Tier            enums.Tier          `json:"tier"`
	TierName        string              `json:"tier_name"`
	Instance        uint64              `json:"instance"`
	Title           string              `json:"title"`
	Artist          string              `json:"artist,omitempty"`
	CollectionTitle string              `json:"collection_title,omitempty"`
	Genre           string              `json:"genre,omitempty"`
	AudioCID        string              `json:"audio_cid"`
	CoverCID        string              `json:"cover_cid,omitempty"`
	DurationSeconds uint64              `json:"duration_seconds"`
	Price           *big.Int            `json:"price_wei"`
	PriceNative     string              `json:"price_native"`
	PriceUSD        decimal.Decimal     `json:"price_usd"`
	MaxSupply       uint64              `json:"max_supply"`
	Remaining       uint64              `json:"remaining"`
	Status          enums.ListingStatus `json:"status"`
	MetadataURI     string              `json:"metadata_uri,omitempty"`
}

// HasAudio reports whether the edition points at playable content.
func (e Edition) HasAudio() bool {
	return strings.TrimSpace(e.AudioCID) != ""
}

// ListingStatus derives a tier's status from its sale flag and supply.
func ListingStatus(tier chain.TierConfig) enums.ListingStatus {
	switch {
	case !tier.SaleActive:
		return enums.ListingStatusUnlisted
	case tier.Remaining() == 0:
		return enums.ListingStatusSoldOut
	default:
		return enums.ListingStatusListed
	}
}

// TokenIDs returns the ids minted in tier, at most limit of them. Ids run
// from StartID upward in mint order.
func TokenIDs(tier chain.TierConfig, limit int) []uint64 {
	n := tier.CurrentSupply
	if limit >= 0 && uint64(limit) < n {
		n = uint64(limit)
	}
	ids := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		ids = append(ids, tier.StartID+i)
	}
	return ids
}

// Materialize cross-joins tracks with tiers. Tiers without minted supply
// contribute nothing; each other tier yields up to displayCap editions per
// track. Output is ordered by track, tier rank, then instance.
func Materialize(tracks []chain.TrackRecord, tiers []chain.TierConfig, collections map[uint64]chain.CollectionRecord, displayCap int, usdRate decimal.Decimal) []Edition {
	var out []Edition
	for _, track := range tracks {
		if !track.Listed() {
			continue
		}
		coll := collections[track.CollectionID]
		for _, tier := range tiers {
			if tier.CurrentSupply == 0 {
				continue
			}
			price := tier.Price
			if price == nil {
				price = new(big.Int)
			}
			status := ListingStatus(tier)
			for i, tokenID := range TokenIDs(tier, displayCap) {
				out = append(out, Edition{
					TokenID:         tokenID,
					TrackID:         track.ID,
					CollectionID:    track.CollectionID,
					Tier:            tier.Tier,
					TierName:        tierName(tier),
					Instance:        uint64(i),
					Title:           track.Title,
					Artist:          coll.Artist,
					CollectionTitle: coll.Title,
					Genre:           coll.Genre,
					AudioCID:        track.AudioCID,
					CoverCID:        coll.CoverCID,
					DurationSeconds: track.DurationSeconds,
					Price:           new(big.Int).Set(price),
					PriceNative:     units.FormatNative(price),
					PriceUSD:        units.ToUSD(price, usdRate),
					MaxSupply:       tier.MaxSupply,
					Remaining:       tier.Remaining(),
					Status:          status,
					MetadataURI:     tier.TokenURI(tokenID),
				})
			}
		}
	}
	return out
}

func tierName(tier chain.TierConfig) string {
	if tier.DisplayName != "" {
		return tier.DisplayName
	}
	return tier.Tier.DisplayName()
}
