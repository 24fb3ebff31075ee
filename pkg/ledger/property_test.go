package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var actors = []Address{ownerAddr, buyerAddr, bidderAddr, authorAddr}

// TestLedgerInvariants drives random operation sequences and checks that every
// asset has exactly one holder, offers and auctions never coexist, proceeds
// stay positive near the int64 ceiling, and replaying the recorded events rebuilds the same state.
func TestLedgerInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newFakeClock()
		rec := &memRecorder{}
		l, err := New(Config{Owner: ownerAddr, Marketplace: marketplaceAddr, Clock: clock, Recorder: rec})
		require.NoError(t, err)
		ctx := context.Background()

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			caller := rapid.SampledFrom(actors).Draw(t, "caller")
			assetID := rapid.Int64Range(1, 4).Draw(t, "asset")
			amount := rapid.OneOf(
				rapid.Int64Range(1, 50),
				rapid.Int64Range(math.MaxInt64-50, math.MaxInt64),
			).Draw(t, "amount")

			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				_, _ = l.CreateSoundAsset(ctx, testSoundAsset(), caller)
			case 1:
				_, _ = l.OfferAssetForSale(ctx, assetID, amount, rapid.Int64Range(1, 120).Draw(t, "duration"), caller)
			case 2:
				_, _ = l.CancelSaleOffer(ctx, assetID, caller)
			case 3:
				_, _ = l.PurchaseAsset(ctx, assetID, caller, amount)
			case 4:
				_, _ = l.PlaceAssetInAuction(ctx, assetID, amount, rapid.Int64Range(1, 120).Draw(t, "duration"), caller)
			case 5:
				_, _ = l.PlaceBidForAssetInAuction(ctx, assetID, caller, amount)
			case 6:
				_, _ = l.CompleteAuction(ctx, assetID, caller)
			case 7:
				_, _ = l.SetApprovalForAll(ctx, marketplaceAddr, rapid.Bool().Draw(t, "approved"), caller)
			case 8:
				_, _ = l.WithdrawProceeds(ctx, caller)
			case 9:
				clock.Advance(time.Duration(rapid.IntRange(1, 90).Draw(t, "advance")) * time.Second)
			}

			checkInvariants(t, l)
		}

		require.EqualValues(t, len(rec.events), l.Seq())

		replayed, err := New(Config{Owner: ownerAddr, Marketplace: marketplaceAddr, Clock: clock})
		require.NoError(t, err)
		require.NoError(t, replayed.Replay(rec.events))
		requireSameState(t, l, replayed)
	})
}

func checkInvariants(t *rapid.T, l *Ledger) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for id, a := range l.assets {
		require.False(t, a.Offer != nil && a.Auction != nil, "asset %d both offered and in auction", id)

		holders := 0
		for key, n := range l.balances {
			if key.assetID != id {
				continue
			}
			require.EqualValues(t, 1, n)
			require.Equal(t, a.CurrentOwner, key.owner)
			holders++
		}
		require.Equal(t, 1, holders, "asset %d holders", id)

		if a.Auction != nil && a.Auction.HighestBidder != "" {
			require.GreaterOrEqual(t, a.Auction.HighestBid, a.Auction.MinPrice)
			require.NotEqual(t, a.CurrentOwner, a.Auction.HighestBidder)
		}
	}
	for addr, v := range l.proceeds {
		require.Positive(t, v, "proceeds of %s", addr)
	}
}
