package ledger

import "time"

// SoundAsset holds the descriptive fields supplied when an asset is created.
type SoundAsset struct {
	Name          string  `json:"name"`
	Format        string  `json:"format"`
	MediaFiles    string  `json:"media_files"`
	Tempo         int64   `json:"tempo"`
	Genre         string  `json:"genre"`
	Style         string  `json:"style"`
	BaseNote      string  `json:"base_note"`
	Signature     string  `json:"signature"`
	AuthorAddress Address `json:"author_address"`
}

// Asset is a registered sound asset. Offer and Auction are nil unless the
// asset is currently listed that way; at most one of them is set.
type Asset struct {
	ID int64 `json:"id"`
	SoundAsset
	CurrentOwner Address    `json:"current_owner"`
	CreatedAt    time.Time  `json:"created_at"`
	Offer        *SaleOffer `json:"offer,omitempty"`
	Auction      *Auction   `json:"auction,omitempty"`
}

// Status reports the listing state of the asset.
func (a Asset) Status() AssetStatus {
	switch {
	case a.Offer != nil:
		return StatusOffered
	case a.Auction != nil:
		return StatusInAuction
	default:
		return StatusIdle
	}
}

func (a Asset) clone() Asset {
	if a.Offer != nil {
		o := *a.Offer
		a.Offer = &o
	}
	if a.Auction != nil {
		au := *a.Auction
		a.Auction = &au
	}
	return a
}

type SaleOffer struct {
	AssetID         int64     `json:"asset_id"`
	Price           int64     `json:"price"`
	DurationSeconds int64     `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type Auction struct {
	AssetID       int64     `json:"asset_id"`
	MinPrice      int64     `json:"min_price"`
	CreatedAt     time.Time `json:"created_at"`
	EndDate       time.Time `json:"end_date"`
	HighestBid    int64     `json:"highest_bid"`
	HighestBidder Address   `json:"highest_bidder,omitempty"`
}

// Ended reports whether the auction can be completed at now.
func (a Auction) Ended(now time.Time) bool {
	return !now.Before(a.EndDate)
}

type AssetStatus string

const (
	StatusIdle      AssetStatus = "idle"
	StatusOffered   AssetStatus = "offered"
	StatusInAuction AssetStatus = "in_auction"
)

// ParseAssetStatus accepts the values used by the listing filter.
func ParseAssetStatus(s string) (AssetStatus, bool) {
	switch AssetStatus(s) {
	case StatusIdle, StatusOffered, StatusInAuction:
		return AssetStatus(s), true
	default:
		return "", false
	}
}

// AssetFilter narrows Assets. Nil fields match everything.
type AssetFilter struct {
	Owner  *Address
	Author *Address
	Genre  *string
	Status *AssetStatus
}

func (f AssetFilter) match(a Asset) bool {
	if f.Owner != nil && a.CurrentOwner != *f.Owner {
		return false
	}
	if f.Author != nil && a.AuthorAddress != *f.Author {
		return false
	}
	if f.Genre != nil && a.Genre != *f.Genre {
		return false
	}
	if f.Status != nil && a.Status() != *f.Status {
		return false
	}
	return true
}
