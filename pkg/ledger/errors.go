package ledger

import "errors"

var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrNotOffered          = errors.New("asset is not offered for sale")
	ErrNoAuction           = errors.New("asset is not in auction")
	ErrInsufficientPayment = errors.New("payment below offer price")
	ErrInsufficientBid     = errors.New("bid too low")
	ErrNotApproved         = errors.New("owner has not approved the marketplace")
	ErrAuctionNotEnded     = errors.New("auction has not ended")
	ErrAuctionEnded        = errors.New("auction has ended")
	ErrAssetInAuction      = errors.New("asset is in auction")
	ErrAssetOffered        = errors.New("asset is offered for sale")
	ErrSelfTrade           = errors.New("owner cannot trade with itself")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrNothingToWithdraw   = errors.New("no proceeds to withdraw")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrAssetNotFound, "asset_not_found"},
	{ErrNotOffered, "not_offered"},
	{ErrNoAuction, "no_auction"},
	{ErrInsufficientPayment, "insufficient_payment"},
	{ErrInsufficientBid, "insufficient_bid"},
	{ErrNotApproved, "not_approved"},
	{ErrAuctionNotEnded, "auction_not_ended"},
	{ErrAuctionEnded, "auction_ended"},
	{ErrAssetInAuction, "asset_in_auction"},
	{ErrAssetOffered, "asset_offered"},
	{ErrSelfTrade, "self_trade"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidInput, "invalid_input"},
	{ErrNothingToWithdraw, "nothing_to_withdraw"},
}

// Code returns a stable machine-readable code for a ledger error, or
// "internal" when err is not one of the sentinel errors above.
func Code(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
