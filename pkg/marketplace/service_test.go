package marketplace

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"soundwork/pkg/ledger"
)

var (
	ownerAddr       = ledger.MustParseAddress("0x1111111111111111111111111111111111111111")
	buyerAddr       = ledger.MustParseAddress("0x2222222222222222222222222222222222222222")
	authorAddr      = ledger.MustParseAddress("0x3333333333333333333333333333333333333333")
	marketplaceAddr = ledger.MustParseAddress("0x9999999999999999999999999999999999999999")
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev ledger.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func newTestLedger(t *testing.T, clock ledger.Clock) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Config{Owner: ownerAddr, Marketplace: marketplaceAddr, Clock: clock})
	require.NoError(t, err)
	return l
}

func soundAsset() ledger.SoundAsset {
	return ledger.SoundAsset{Name: "pad", Format: "flac", Genre: "ambient", AuthorAddress: authorAddr}
}

func TestMarketplaceService_PublishesCommittedEvents(t *testing.T) {
	pub := new(mockPublisher)
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop(), pub)
	ctx := context.Background()

	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev ledger.Event) bool {
		return ev.Type == ledger.EventAssetCreated && ev.AssetID == 1
	})).Return(nil).Once()

	r, err := svc.CreateSoundAsset(ctx, soundAsset(), ownerAddr)
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Asset.ID)
	require.Equal(t, ownerAddr, r.Asset.CurrentOwner)

	pub.AssertExpectations(t)
}

func TestMarketplaceService_RejectedOperationPublishesNothing(t *testing.T) {
	pub := new(mockPublisher)
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop(), pub)

	_, err := svc.CreateSoundAsset(context.Background(), soundAsset(), buyerAddr)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestMarketplaceService_PublisherFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	failing := new(mockPublisher)
	healthy := new(mockPublisher)
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.New(core), failing, healthy)

	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	healthy.On("Publish", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateSoundAsset(context.Background(), soundAsset(), ownerAddr)
	require.NoError(t, err)

	healthy.AssertNumberOfCalls(t, "Publish", 1)
	require.Equal(t, 1, logs.FilterMessage("publish event failed").Len())
}

func TestMarketplaceService_AuctionScenario(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewMarketplaceService(newTestLedger(t, clock), zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateSoundAsset(ctx, soundAsset(), ownerAddr)
	require.NoError(t, err)
	_, err = svc.SetApprovalForAll(ctx, marketplaceAddr, true, ownerAddr)
	require.NoError(t, err)
	_, err = svc.PlaceAssetInAuction(ctx, 1, 100, 100, ownerAddr)
	require.NoError(t, err)

	au, err := svc.GetAuction(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 100, au.MinPrice)

	_, err = svc.PlaceBidForAssetInAuction(ctx, 1, buyerAddr, 200)
	require.NoError(t, err)

	_, err = svc.CompleteAuction(ctx, 1, buyerAddr)
	require.ErrorIs(t, err, ledger.ErrAuctionNotEnded)

	clock.now = clock.now.Add(100 * time.Second)
	r, err := svc.CompleteAuction(ctx, 1, buyerAddr)
	require.NoError(t, err)
	require.Equal(t, buyerAddr, r.Asset.CurrentOwner)

	require.True(t, svc.IsCurrentNftOwner(ctx, buyerAddr, 1))
	require.EqualValues(t, 1, svc.BalanceOf(ctx, buyerAddr, 1))
	require.EqualValues(t, 200, svc.Proceeds(ctx, ownerAddr))

	r, err = svc.WithdrawProceeds(ctx, ownerAddr)
	require.NoError(t, err)
	require.EqualValues(t, 200, r.Event.Amount)

	info := svc.Info(ctx)
	require.Equal(t, ownerAddr, info.Owner)
	require.Equal(t, marketplaceAddr, info.Marketplace)
	require.EqualValues(t, 6, info.Seq)
}

func TestMarketplaceService_ListAssetsPaginates(t *testing.T) {
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateSoundAsset(ctx, soundAsset(), ownerAddr)
		require.NoError(t, err)
	}

	items, total, err := svc.ListAssets(ctx, ledger.AssetFilter{}, 2, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, items, 1)
	require.EqualValues(t, 3, items[0].ID)

	items, _, err = svc.ListAssets(ctx, ledger.AssetFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
}

type seqRecorder struct {
	mu   sync.Mutex
	seqs []int64
}

func (r *seqRecorder) Publish(ctx context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, ev.Seq)
	return nil
}

func TestMarketplaceService_ConcurrentCommitsPublishEverySeq(t *testing.T) {
	rec := &seqRecorder{}
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop(), rec)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSoundAsset(ctx, soundAsset(), ownerAddr)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := append([]int64(nil), rec.seqs...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, n)
	for i, seq := range got {
		require.EqualValues(t, i+1, seq)
	}
}
