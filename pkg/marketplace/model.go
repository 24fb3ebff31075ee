package marketplace

import "soundwork/pkg/ledger"

type Info struct {
	Owner       ledger.Address `json:"owner"`
	Marketplace ledger.Address `json:"marketplace"`
	Seq         int64          `json:"seq"`
}

type AssetList struct {
	Items []ledger.Asset `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type OwnershipStatus struct {
	AssetID        int64          `json:"asset_id"`
	Address        ledger.Address `json:"address"`
	IsCurrentOwner bool           `json:"is_current_owner"`
}

type Balance struct {
	AssetID int64          `json:"asset_id"`
	Address ledger.Address `json:"address"`
	Balance int64          `json:"balance"`
}

type ApprovalStatus struct {
	Owner    ledger.Address `json:"owner"`
	Operator ledger.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

type ProceedsBalance struct {
	Address ledger.Address `json:"address"`
	Amount  int64          `json:"amount"`
}

// TradeResult is returned by every mutating route.
type TradeResult struct {
	Event ledger.Event  `json:"event"`
	Asset *ledger.Asset `json:"asset,omitempty"`
}

func newTradeResult(r ledger.Receipt) TradeResult {
	res := TradeResult{Event: r.Event}
	if r.Asset.ID != 0 {
		asset := r.Asset
		res.Asset = &asset
	}
	return res
}
