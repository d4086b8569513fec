package enums

// ListingStatus mirrors a tier's sale-active flag combined with remaining supply.
type ListingStatus string

const (
	ListingStatusListed   ListingStatus = "listed"
	ListingStatusSoldOut  ListingStatus = "sold_out"
	ListingStatusUnlisted ListingStatus = "unlisted"
)

// String returns the literal string for the status.
func (l ListingStatus) String() string {
	return string(l)
}

// Purchasable reports whether editions with this status may enter a purchase flow.
func (l ListingStatus) Purchasable() bool {
	return l == ListingStatusListed
}
