package publish

import (
	"math/big"
	"strings"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

// MaxTierSupply is the largest per-tier cap a publisher may request.
const MaxTierSupply = 100_000

// Metadata is the album-level information entered before any upload.
type Metadata struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Artist          string   `json:"artist" validate:"required,max=120"`
	Genre           string   `json:"genre" validate:"required,max=60"`
	Description     string   `json:"description" validate:"max=2000"`
	Tags            []string `json:"tags" validate:"max=10,dive,max=40"`
	DurationSeconds uint64   `json:"duration_seconds"`
	RightsCleared   bool     `json:"rights_cleared" validate:"required"`
}

func (m Metadata) normalized() Metadata {
	m.Title = strings.TrimSpace(m.Title)
	m.Artist = strings.TrimSpace(m.Artist)
	m.Genre = strings.TrimSpace(m.Genre)
	m.Description = strings.TrimSpace(m.Description)
	tags := make([]string, 0, len(m.Tags))
	for _, tag := range m.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	m.Tags = tags
	return m
}

// TrackInput is an additional, already uploaded track published alongside
// the primary one.
type TrackInput struct {
	Title           string   `json:"title" validate:"required,max=200"`
	AudioCID        string   `json:"audio_cid" validate:"required"`
	DurationSeconds uint64   `json:"duration_seconds"`
	Tags            []string `json:"tags" validate:"max=10,dive,max=40"`
}

// TierInput is the publisher's choice for one tier.
type TierInput struct {
	Tier      enums.Tier `json:"tier"`
	Enabled   bool       `json:"enabled"`
	Price     *big.Int   `json:"price"`
	MaxSupply uint64     `json:"max_supply"`
}

// Draft is everything staged for one publish attempt.
type Draft struct {
	Metadata Metadata      `json:"metadata"`
	Audio    *storage.File `json:"-"`
	Cover    *storage.File `json:"-"`
	AudioCID string        `json:"audio_cid,omitempty"`
	CoverCID string        `json:"cover_cid,omitempty"`
	Tracks   []TrackInput  `json:"tracks,omitempty"`
	Tiers    []TierInput   `json:"tiers,omitempty"`
	// CollectionID is set once the chain has assigned one.
	CollectionID *uint64 `json:"collection_id,omitempty"`
}

func (d *Draft) release() {
	_ = d.Audio.Release()
	_ = d.Cover.Release()
	d.Audio, d.Cover = nil, nil
}

// TrackPlan is one addTrack call, minus the collection id.
type TrackPlan struct {
	Title           string   `json:"title"`
	AudioCID        string   `json:"audio_cid"`
	DurationSeconds uint64   `json:"duration_seconds"`
	Tags            []string `json:"tags,omitempty"`
}

// Plan is the full deploy sequence derived from a staged draft.
type Plan struct {
	Collection chain.CreateCollectionArgs `json:"collection"`
	Tracks     []TrackPlan                `json:"tracks"`
	Tiers      []chain.TierSetting        `json:"tiers"`
}

func (p Plan) addTrackArgs(collectionID uint64, index int) chain.AddTrackArgs {
	t := p.Tracks[index]
	return chain.AddTrackArgs{
		CollectionID:    collectionID,
		Title:           t.Title,
		AudioCID:        t.AudioCID,
		DurationSeconds: t.DurationSeconds,
		Tags:            t.Tags,
		Tiers:           p.Tiers,
	}
}

// plan turns the draft into deploy calls. The primary track always comes
// first, followed by extra tracks in the order given.
func (d Draft) plan() Plan {
	md := d.Metadata
	p := Plan{
		Collection: chain.CreateCollectionArgs{
			Title:       md.Title,
			Artist:      md.Artist,
			Description: md.Description,
			CoverCID:    d.CoverCID,
			Genre:       md.Genre,
		},
		Tracks: []TrackPlan{{
			Title:           md.Title,
			AudioCID:        d.AudioCID,
			DurationSeconds: md.DurationSeconds,
			Tags:            md.Tags,
		}},
	}
	for _, t := range d.Tracks {
		p.Tracks = append(p.Tracks, TrackPlan{
			Title:           strings.TrimSpace(t.Title),
			AudioCID:        strings.TrimSpace(t.AudioCID),
			DurationSeconds: t.DurationSeconds,
			Tags:            t.Tags,
		})
	}
	for _, tier := range d.Tiers {
		if !tier.Enabled {
			continue
		}
		p.Tiers = append(p.Tiers, chain.TierSetting{
			Tier:      tier.Tier,
			Price:     new(big.Int).Set(tier.Price),
			MaxSupply: tier.MaxSupply,
		})
	}
	return p
}

// normalizeTiers returns exactly one entry per tier in rank order. Tiers
// missing from in are disabled; disabled tiers carry no price or supply.
func normalizeTiers(in []TierInput) []TierInput {
	byTier := make(map[enums.Tier]TierInput, len(in))
	for _, t := range in {
		byTier[t.Tier] = t
	}
	out := make([]TierInput, 0, len(enums.AllTiers))
	for _, tier := range enums.AllTiers {
		t, ok := byTier[tier]
		if !ok || !t.Enabled {
			out = append(out, TierInput{Tier: tier})
			continue
		}
		out = append(out, TierInput{
			Tier:      tier,
			Enabled:   true,
			Price:     new(big.Int).Set(t.Price),
			MaxSupply: t.MaxSupply,
		})
	}
	return out
}
