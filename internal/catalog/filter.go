package catalog

import (
	"strings"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// Filter narrows a snapshot. The zero value keeps every edition, which is
// the historical view.
type Filter struct {
	// HasAudio drops editions without an audio content address.
	HasAudio bool
	// Available keeps purchasable editions only. It implies HasAudio since
	// an edition without audio must never reach a purchase flow.
	Available    bool
	Tier         *enums.Tier
	CollectionID *uint64
	Artist       string
}

// Apply returns the editions matching f, preserving order.
func (f Filter) Apply(editions []Edition) []Edition {
	artist := strings.TrimSpace(f.Artist)
	out := make([]Edition, 0, len(editions))
	for _, e := range editions {
		if (f.HasAudio || f.Available) && !e.HasAudio() {
			continue
		}
		if f.Available && !e.Status.Purchasable() {
			continue
		}
		if f.Tier != nil && e.Tier != *f.Tier {
			continue
		}
		if f.CollectionID != nil && e.CollectionID != *f.CollectionID {
			continue
		}
		if artist != "" && !strings.EqualFold(strings.TrimSpace(e.Artist), artist) {
			continue
		}
		out = append(out, e)
	}
	return out
}
