package enums

import (
	"fmt"
	"strings"
)

// Tier is one of the four fixed purchase classes configured on the marketplace contract.
// The numeric value matches the contract's enum ordinal.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

// AllTiers lists the tiers in rank order.
var AllTiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}

var tierNames = map[Tier]string{
	TierBronze:   "bronze",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
}

// String returns the lowercase tier name.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// DisplayName returns the capitalized label shown to buyers.
func (t Tier) DisplayName() string {
	name := t.String()
	if !t.IsValid() {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// IsValid reports whether the tier is known.
func (t Tier) IsValid() bool {
	_, ok := tierNames[t]
	return ok
}

// MarshalText renders the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid tier %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	clean := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range AllTiers {
		if tierNames[candidate] == clean {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("invalid tier %q", value)
}
