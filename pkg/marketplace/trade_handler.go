package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"soundwork/pkg/ledger"
	"soundwork/pkg/middleware"
	"soundwork/pkg/response"
)

type createAssetRequest struct {
	Name          string `json:"name" binding:"required"`
	Format        string `json:"format"`
	MediaFiles    string `json:"media_files"`
	Tempo         int64  `json:"tempo"`
	Genre         string `json:"genre"`
	Style         string `json:"style"`
	BaseNote      string `json:"base_note"`
	Signature     string `json:"signature"`
	AuthorAddress string `json:"author_address" binding:"required"`
}

type offerRequest struct {
	Price           int64 `json:"price"`
	DurationSeconds int64 `json:"duration_seconds"`
}

type auctionRequest struct {
	MinPrice        int64 `json:"min_price"`
	DurationSeconds int64 `json:"duration_seconds"`
}

type valueRequest struct {
	Value int64 `json:"value"`
}

type approvalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// caller is always present behind RequireCaller.
func caller(c *gin.Context) ledger.Address {
	addr, _ := middleware.Caller(c)
	return addr
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid request payload")
		return false
	}
	return true
}

func sendReceipt(c *gin.Context, code int, message string, r ledger.Receipt) {
	response.SendAPIResponse(c, code, true, message, newTradeResult(r))
}

// @Summary      Create a sound asset
// @Description  Registers a new sound asset. Only the marketplace owner may call it; the owner holds the new asset.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string              true  "Caller address"
// @Param        request           body    createAssetRequest  true  "Sound asset"
// @Success      201  {object}  response.APIResponse{data=TradeResult} "Asset created"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Failure      401  {object}  response.APIResponse "Missing caller"
// @Failure      403  {object}  response.APIResponse "Caller is not the marketplace owner"
// @Router       /assets [post]
func (h *MarketplaceHandler) createAsset(c *gin.Context) {
	var req createAssetRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.CreateSoundAsset(c.Request.Context(), ledger.SoundAsset{
		Name:          req.Name,
		Format:        req.Format,
		MediaFiles:    req.MediaFiles,
		Tempo:         req.Tempo,
		Genre:         req.Genre,
		Style:         req.Style,
		BaseNote:      req.BaseNote,
		Signature:     req.Signature,
		AuthorAddress: ledger.Address(req.AuthorAddress),
	}, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusCreated, "asset created", r)
}

// @Summary      Offer an asset for sale
// @Tags         sales
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string        true  "Caller address"
// @Param        id                path    int           true  "Asset ID"
// @Param        request           body    offerRequest  true  "Price and duration"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Asset offered"
// @Failure      400  {object}  response.APIResponse "Invalid input"
// @Failure      403  {object}  response.APIResponse "Caller does not own the asset"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Failure      409  {object}  response.APIResponse "Asset is in auction"
// @Router       /assets/{id}/offer [post]
func (h *MarketplaceHandler) offerAsset(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	var req offerRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.OfferAssetForSale(c.Request.Context(), id, req.Price, req.DurationSeconds, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "asset offered for sale", r)
}

// @Summary      Withdraw a sale offer
// @Tags         sales
// @Produce      json
// @Param        X-Caller-Address  header  string  true  "Caller address"
// @Param        id                path    int     true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Offer cancelled"
// @Failure      403  {object}  response.APIResponse "Caller does not own the asset"
// @Failure      409  {object}  response.APIResponse "Asset is not offered"
// @Router       /assets/{id}/offer [delete]
func (h *MarketplaceHandler) cancelOffer(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}

	r, err := h.service.CancelSaleOffer(c.Request.Context(), id, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "sale offer cancelled", r)
}

// @Summary      Purchase an offered asset
// @Tags         sales
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string        true  "Caller address"
// @Param        id                path    int           true  "Asset ID"
// @Param        request           body    valueRequest  true  "Payment"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Asset purchased"
// @Failure      409  {object}  response.APIResponse "Asset is not offered"
// @Failure      412  {object}  response.APIResponse "Owner has not approved the marketplace"
// @Failure      422  {object}  response.APIResponse "Payment below price"
// @Router       /assets/{id}/purchase [post]
func (h *MarketplaceHandler) purchaseAsset(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	var req valueRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.PurchaseAsset(c.Request.Context(), id, caller(c), req.Value)
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "asset purchased", r)
}

// @Summary      Place an asset in auction
// @Tags         auctions
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string          true  "Caller address"
// @Param        id                path    int             true  "Asset ID"
// @Param        request           body    auctionRequest  true  "Minimum price and duration"
// @Success      201  {object}  response.APIResponse{data=TradeResult} "Auction started"
// @Failure      403  {object}  response.APIResponse "Caller does not own the asset"
// @Failure      409  {object}  response.APIResponse "Asset already offered or in auction"
// @Router       /assets/{id}/auction [post]
func (h *MarketplaceHandler) startAuction(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	var req auctionRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.PlaceAssetInAuction(c.Request.Context(), id, req.MinPrice, req.DurationSeconds, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusCreated, "auction started", r)
}

// @Summary      Bid on an auction
// @Tags         auctions
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string        true  "Caller address"
// @Param        id                path    int           true  "Asset ID"
// @Param        request           body    valueRequest  true  "Bid"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Bid placed"
// @Failure      409  {object}  response.APIResponse "No auction or auction ended"
// @Failure      412  {object}  response.APIResponse "Owner has not approved the marketplace"
// @Failure      422  {object}  response.APIResponse "Bid too low"
// @Router       /assets/{id}/bids [post]
func (h *MarketplaceHandler) placeBid(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	var req valueRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.PlaceBidForAssetInAuction(c.Request.Context(), id, caller(c), req.Value)
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "bid placed", r)
}

// @Summary      Complete an auction
// @Description  Settles an auction whose end date has passed. Any caller may complete it.
// @Tags         auctions
// @Produce      json
// @Param        X-Caller-Address  header  string  true  "Caller address"
// @Param        id                path    int     true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Auction completed"
// @Failure      409  {object}  response.APIResponse "No auction or auction still running"
// @Router       /assets/{id}/auction/complete [post]
func (h *MarketplaceHandler) completeAuction(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}

	r, err := h.service.CompleteAuction(c.Request.Context(), id, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "auction completed", r)
}

// @Summary      Approve or revoke an operator
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string           true  "Caller address"
// @Param        operator          path    string           true  "Operator address"
// @Param        request           body    approvalRequest  true  "Approval flag"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Approval updated"
// @Failure      400  {object}  response.APIResponse "Invalid operator"
// @Router       /approvals/{operator} [put]
func (h *MarketplaceHandler) setApprovalForAll(c *gin.Context) {
	operator, ok := parseAddressParam(c, "operator")
	if !ok {
		return
	}
	var req approvalRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.service.SetApprovalForAll(c.Request.Context(), operator, *req.Approved, caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "approval updated", r)
}

// @Summary      Withdraw proceeds
// @Tags         proceeds
// @Produce      json
// @Param        X-Caller-Address  header  string  true  "Caller address"
// @Success      200  {object}  response.APIResponse{data=TradeResult} "Proceeds withdrawn"
// @Failure      409  {object}  response.APIResponse "Nothing to withdraw"
// @Router       /proceeds/withdraw [post]
func (h *MarketplaceHandler) withdrawProceeds(c *gin.Context) {
	r, err := h.service.WithdrawProceeds(c.Request.Context(), caller(c))
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	sendReceipt(c, http.StatusOK, "proceeds withdrawn", r)
}
