package ledger

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAssetCreated      EventType = "asset_created"
	EventSaleOffered       EventType = "sale_offered"
	EventSaleCancelled     EventType = "sale_cancelled"
	EventAssetPurchased    EventType = "asset_purchased"
	EventAuctionStarted    EventType = "auction_started"
	EventBidPlaced         EventType = "bid_placed"
	EventAuctionCompleted  EventType = "auction_completed"
	EventApprovalChanged   EventType = "approval_changed"
	EventProceedsWithdrawn EventType = "proceeds_withdrawn"
)

// Event is a committed ledger change. Applying the same ordered events to an
// empty ledger reproduces its state.
//
// Field use per type:
//   - asset_created: Asset, Seller (initial owner)
//   - sale_offered / auction_started: Amount (price / min price), DurationSeconds
//   - asset_purchased: Seller, Buyer, Amount (payment)
//   - bid_placed: Buyer (bidder), Amount, PreviousBidder, Refund
//   - auction_completed: Seller, Buyer (winner, empty without bids), Amount
//   - approval_changed: Operator, Approved
//   - proceeds_withdrawn: Amount
type Event struct {
	ID              uuid.UUID   `json:"id"`
	Seq             int64       `json:"seq"`
	Type            EventType   `json:"type"`
	AssetID         int64       `json:"asset_id,omitempty"`
	Caller          Address     `json:"caller"`
	Seller          Address     `json:"seller,omitempty"`
	Buyer           Address     `json:"buyer,omitempty"`
	PreviousBidder  Address     `json:"previous_bidder,omitempty"`
	Amount          int64       `json:"amount,omitempty"`
	Refund          int64       `json:"refund,omitempty"`
	DurationSeconds int64       `json:"duration_seconds,omitempty"`
	Operator        Address     `json:"operator,omitempty"`
	Approved        bool        `json:"approved,omitempty"`
	Asset           *SoundAsset `json:"asset,omitempty"`
	OccurredAt      time.Time   `json:"occurred_at"`
}

// Involves reports whether addr took part in the event in any role.
func (e Event) Involves(addr Address) bool {
	switch addr {
	case "":
		return false
	case e.Caller, e.Seller, e.Buyer, e.PreviousBidder, e.Operator:
		return true
	}
	return e.Asset != nil && e.Asset.AuthorAddress == addr
}
