package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
	"soundwork/pkg/middleware"
	"soundwork/pkg/response"
)

type mockMarketplaceService struct {
	mock.Mock
}

func (m *mockMarketplaceService) Info(ctx context.Context) Info {
	args := m.Called(ctx)
	return args.Get(0).(Info)
}

func (m *mockMarketplaceService) receipt(args mock.Arguments) (ledger.Receipt, error) {
	r, _ := args.Get(0).(ledger.Receipt)
	return r, args.Error(1)
}

func (m *mockMarketplaceService) CreateSoundAsset(ctx context.Context, asset ledger.SoundAsset, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, asset, caller))
}

func (m *mockMarketplaceService) OfferAssetForSale(ctx context.Context, assetID, price, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, price, durationSeconds, caller))
}

func (m *mockMarketplaceService) CancelSaleOffer(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, caller))
}

func (m *mockMarketplaceService) PurchaseAsset(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, caller, value))
}

func (m *mockMarketplaceService) PlaceAssetInAuction(ctx context.Context, assetID, minPrice, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, minPrice, durationSeconds, caller))
}

func (m *mockMarketplaceService) PlaceBidForAssetInAuction(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, caller, value))
}

func (m *mockMarketplaceService) CompleteAuction(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, assetID, caller))
}

func (m *mockMarketplaceService) SetApprovalForAll(ctx context.Context, operator ledger.Address, approved bool, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, operator, approved, caller))
}

func (m *mockMarketplaceService) WithdrawProceeds(ctx context.Context, caller ledger.Address) (ledger.Receipt, error) {
	return m.receipt(m.Called(ctx, caller))
}

func (m *mockMarketplaceService) GetAsset(ctx context.Context, assetID int64) (ledger.Asset, error) {
	args := m.Called(ctx, assetID)
	a, _ := args.Get(0).(ledger.Asset)
	return a, args.Error(1)
}

func (m *mockMarketplaceService) GetAuction(ctx context.Context, assetID int64) (ledger.Auction, error) {
	args := m.Called(ctx, assetID)
	a, _ := args.Get(0).(ledger.Auction)
	return a, args.Error(1)
}

func (m *mockMarketplaceService) ListAssets(ctx context.Context, filter ledger.AssetFilter, page, limit int) ([]ledger.Asset, int64, error) {
	args := m.Called(ctx, filter, page, limit)
	items, _ := args.Get(0).([]ledger.Asset)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockMarketplaceService) IsCurrentNftOwner(ctx context.Context, addr ledger.Address, assetID int64) bool {
	return m.Called(ctx, addr, assetID).Bool(0)
}

func (m *mockMarketplaceService) BalanceOf(ctx context.Context, addr ledger.Address, assetID int64) int64 {
	return m.Called(ctx, addr, assetID).Get(0).(int64)
}

func (m *mockMarketplaceService) IsApprovedForAll(ctx context.Context, owner, operator ledger.Address) bool {
	return m.Called(ctx, owner, operator).Bool(0)
}

func (m *mockMarketplaceService) Proceeds(ctx context.Context, addr ledger.Address) int64 {
	return m.Called(ctx, addr).Get(0).(int64)
}

func setupMarketplaceRouter(service MarketplaceService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewMarketplaceHandler(service, nil)
	h.RegisterRoutes(r)
	return r
}

func doRequest(r http.Handler, method, path, body string, caller ledger.Address) (*httptest.ResponseRecorder, response.APIResponse) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestMarketplaceHandler_CreateAsset_Success(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	created := ledger.Asset{ID: 1, SoundAsset: soundAsset(), CurrentOwner: ownerAddr}
	svc.On("CreateSoundAsset", mock.Anything, mock.MatchedBy(func(a ledger.SoundAsset) bool {
		return a.Name == "pad" && a.AuthorAddress == authorAddr && a.Tempo == 90
	}), ownerAddr).Return(ledger.Receipt{Event: ledger.Event{Seq: 1, Type: ledger.EventAssetCreated, AssetID: 1}, Asset: created}, nil)

	body := fmt.Sprintf(`{"name":"pad","format":"flac","tempo":90,"author_address":"%s"}`, authorAddr)
	w, resp := doRequest(r, http.MethodPost, "/assets", body, ownerAddr)

	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, resp.Success)
	require.Equal(t, "asset created", resp.Message)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	asset := data["asset"].(map[string]any)
	require.EqualValues(t, 1, asset["id"])
	require.Equal(t, "pad", asset["name"])

	svc.AssertExpectations(t)
}

func TestMarketplaceHandler_CreateAsset_MissingCaller(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	w, resp := doRequest(r, http.MethodPost, "/assets", `{"name":"pad","author_address":"0x3333333333333333333333333333333333333333"}`, "")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "missing_caller", resp.Error)
	svc.AssertNotCalled(t, "CreateSoundAsset", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarketplaceHandler_CreateAsset_InvalidPayload(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	w, resp := doRequest(r, http.MethodPost, "/assets", `{"format":"wav"}`, ownerAddr)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid request payload", resp.Message)
}

func TestMarketplaceHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ledger.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{ledger.ErrAssetNotFound, http.StatusNotFound, "asset_not_found"},
		{ledger.ErrNotOffered, http.StatusConflict, "not_offered"},
		{ledger.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},
		{ledger.ErrNotApproved, http.StatusPreconditionFailed, "not_approved"},
		{ledger.ErrSelfTrade, http.StatusUnprocessableEntity, "self_trade"},
		{fmt.Errorf("record asset_purchased: %w", context.DeadlineExceeded), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := new(mockMarketplaceService)
			r := setupMarketplaceRouter(svc)
			svc.On("PurchaseAsset", mock.Anything, int64(1), buyerAddr, int64(50)).Return(nil, tt.err)

			w, resp := doRequest(r, http.MethodPost, "/assets/1/purchase", `{"value":50}`, buyerAddr)

			require.Equal(t, tt.status, w.Code)
			require.False(t, resp.Success)
			require.Equal(t, tt.code, resp.Error)
			if tt.status == http.StatusInternalServerError {
				require.Equal(t, "internal server error", resp.Message)
			}
		})
	}
}

func TestMarketplaceHandler_GetAsset_InvalidID(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	w, _ := doRequest(r, http.MethodGet, "/assets/abc", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketplaceHandler_GetAuction_NoAuctionIsNotFound(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)
	svc.On("GetAuction", mock.Anything, int64(4)).Return(nil, fmt.Errorf("%w: 4", ledger.ErrNoAuction))

	w, resp := doRequest(r, http.MethodGet, "/assets/4/auction", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "no_auction", resp.Error)
}

func TestMarketplaceHandler_ListAssets_Filters(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	svc.On("ListAssets", mock.Anything, mock.MatchedBy(func(f ledger.AssetFilter) bool {
		return f.Owner != nil && *f.Owner == buyerAddr &&
			f.Status != nil && *f.Status == ledger.StatusOffered &&
			f.Genre != nil && *f.Genre == "ambient" && f.Author == nil
	}), 2, 100).Return([]ledger.Asset{{ID: 3}}, int64(11), nil)

	path := "/assets?owner=" + strings.ToLower(buyerAddr.String()) + "&status=offered&genre=ambient&page=2&limit=500"
	w, resp := doRequest(r, http.MethodGet, path, "", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	require.EqualValues(t, 11, data["total"])
	require.EqualValues(t, 100, data["limit"])
	svc.AssertExpectations(t)
}

func TestMarketplaceHandler_ListAssets_BadStatus(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	w, resp := doRequest(r, http.MethodGet, "/assets?status=sold", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_input", resp.Error)
}

func TestMarketplaceHandler_SetApproval_RequiresFlag(t *testing.T) {
	svc := new(mockMarketplaceService)
	r := setupMarketplaceRouter(svc)

	w, _ := doRequest(r, http.MethodPut, "/approvals/"+marketplaceAddr.String(), `{}`, ownerAddr)
	require.Equal(t, http.StatusBadRequest, w.Code)

	svc.On("SetApprovalForAll", mock.Anything, marketplaceAddr, false, ownerAddr).
		Return(ledger.Receipt{Event: ledger.Event{Type: ledger.EventApprovalChanged, Operator: marketplaceAddr}}, nil)

	w, resp := doRequest(r, http.MethodPut, "/approvals/"+marketplaceAddr.String(), `{"approved":false}`, ownerAddr)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	require.NotContains(t, data, "asset")
	svc.AssertExpectations(t)
}

// TestMarketplaceHandler_PurchaseScenario runs the full purchase flow over HTTP
// against a real ledger.
func TestMarketplaceHandler_PurchaseScenario(t *testing.T) {
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop())
	r := setupMarketplaceRouter(svc)

	body := fmt.Sprintf(`{"name":"pad","author_address":"%s"}`, authorAddr)
	w, _ := doRequest(r, http.MethodPost, "/assets", body, ownerAddr)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := doRequest(r, http.MethodPost, "/assets/1/offer", `{"price":100,"duration_seconds":60}`, buyerAddr)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "unauthorized", resp.Error)

	w, resp = doRequest(r, http.MethodPost, "/assets/1/purchase", `{"value":100}`, buyerAddr)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "not_offered", resp.Error)

	w, _ = doRequest(r, http.MethodPost, "/assets/1/offer", `{"price":100,"duration_seconds":60}`, ownerAddr)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doRequest(r, http.MethodPost, "/assets/1/purchase", `{"value":99}`, buyerAddr)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "insufficient_payment", resp.Error)

	w, resp = doRequest(r, http.MethodPost, "/assets/1/purchase", `{"value":150}`, buyerAddr)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	require.Equal(t, "not_approved", resp.Error)

	w, _ = doRequest(r, http.MethodPut, "/approvals/"+marketplaceAddr.String(), `{"approved":true}`, ownerAddr)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(r, http.MethodPost, "/assets/1/purchase", `{"value":150}`, buyerAddr)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doRequest(r, http.MethodGet, "/assets/1/owners/"+buyerAddr.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp.Data.(map[string]any)["is_current_owner"])

	w, resp = doRequest(r, http.MethodGet, "/proceeds/"+ownerAddr.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 150, resp.Data.(map[string]any)["amount"])

	w, resp = doRequest(r, http.MethodGet, "/approvals/"+ownerAddr.String()+"/"+marketplaceAddr.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp.Data.(map[string]any)["approved"])

	w, _ = doRequest(r, http.MethodPost, "/proceeds/withdraw", "", ownerAddr)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doRequest(r, http.MethodPost, "/proceeds/withdraw", "", ownerAddr)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "nothing_to_withdraw", resp.Error)
}

func TestMarketplaceHandler_ListAssets_HugePage(t *testing.T) {
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop())
	r := setupMarketplaceRouter(svc)

	body := fmt.Sprintf(`{"name":"pad","author_address":"%s"}`, authorAddr)
	w, _ := doRequest(r, http.MethodPost, "/assets", body, ownerAddr)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := doRequest(r, http.MethodGet, "/assets?page=1000000000000000000", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	require.EqualValues(t, 1, data["total"])
	require.Empty(t, data["items"])

	w, resp = doRequest(r, http.MethodGet, "/assets?page=1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Data.(map[string]any)["items"], 1)
}

func TestMarketplaceHandler_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := NewMarketplaceService(newTestLedger(t, nil), zap.NewNop())
	NewMarketplaceHandler(svc, middleware.NewRateLimiter(0.001, 1)).RegisterRoutes(r)

	w, _ := doRequest(r, http.MethodPost, "/proceeds/withdraw", "", buyerAddr)
	require.Equal(t, http.StatusConflict, w.Code)

	w, resp := doRequest(r, http.MethodPost, "/proceeds/withdraw", "", buyerAddr)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "rate_limited", resp.Error)
}
