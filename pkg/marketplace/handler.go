package marketplace

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"soundwork/pkg/ledger"
	"soundwork/pkg/middleware"
	"soundwork/pkg/response"
)

type MarketplaceHandler struct {
	service MarketplaceService
	limiter *middleware.RateLimiter
}

// NewMarketplaceHandler builds the handler. limiter may be nil to disable
// rate limiting.
func NewMarketplaceHandler(service MarketplaceService, limiter *middleware.RateLimiter) *MarketplaceHandler {
	return &MarketplaceHandler{service: service, limiter: limiter}
}

func (h *MarketplaceHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/marketplace", h.getInfo)
	router.GET("/assets", h.listAssets)
	router.GET("/assets/:id", h.getAsset)
	router.GET("/assets/:id/owners/:address", h.isCurrentOwner)
	router.GET("/assets/:id/balances/:address", h.balanceOf)
	router.GET("/assets/:id/auction", h.getAuction)
	router.GET("/approvals/:owner/:operator", h.isApprovedForAll)
	router.GET("/proceeds/:address", h.getProceeds)

	handlers := []gin.HandlerFunc{middleware.RequireCaller()}
	if h.limiter != nil {
		handlers = append(handlers, h.limiter.Middleware())
	}
	mutating := router.Group("/", handlers...)
	mutating.POST("/assets", h.createAsset)
	mutating.POST("/assets/:id/offer", h.offerAsset)
	mutating.DELETE("/assets/:id/offer", h.cancelOffer)
	mutating.POST("/assets/:id/purchase", h.purchaseAsset)
	mutating.POST("/assets/:id/auction", h.startAuction)
	mutating.POST("/assets/:id/bids", h.placeBid)
	mutating.POST("/assets/:id/auction/complete", h.completeAuction)
	mutating.PUT("/approvals/:operator", h.setApprovalForAll)
	mutating.POST("/proceeds/withdraw", h.withdrawProceeds)
}

func parseAssetID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid asset id")
		return 0, false
	}
	return id, true
}

func parseAddressParam(c *gin.Context, name string) (ledger.Address, bool) {
	addr, err := ledger.ParseAddress(c.Param(name))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, ledger.Code(err), "invalid "+name+" address")
		return "", false
	}
	return addr, true
}

// @Summary      Marketplace info
// @Description  Returns the marketplace owner, the operator address owners approve, and the journal position
// @Tags         marketplace
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=Info}
// @Router       /marketplace [get]
func (h *MarketplaceHandler) getInfo(c *gin.Context) {
	response.SendAPIResponse(c, http.StatusOK, true, "marketplace info", h.service.Info(c.Request.Context()))
}

// @Summary      List sound assets
// @Description  Retrieves a paginated list of sound assets with optional filters
// @Tags         assets
// @Produce      json
// @Param        page    query     int     false  "Page number" default(1)
// @Param        limit   query     int     false  "Items per page" default(10)
// @Param        owner   query     string  false  "Filter by current owner"
// @Param        author  query     string  false  "Filter by author"
// @Param        genre   query     string  false  "Filter by genre"
// @Param        status  query     string  false  "Filter by listing status" Enums(idle, offered, in_auction)
// @Success      200  {object}  response.APIResponse{data=AssetList}
// @Failure      400  {object}  response.APIResponse "Invalid filter"
// @Router       /assets [get]
func (h *MarketplaceHandler) listAssets(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	filter := ledger.AssetFilter{}
	for _, f := range []struct {
		name string
		dst  **ledger.Address
	}{{"owner", &filter.Owner}, {"author", &filter.Author}} {
		raw := c.Query(f.name)
		if raw == "" {
			continue
		}
		addr, err := ledger.ParseAddress(raw)
		if err != nil {
			response.SendError(c, http.StatusBadRequest, ledger.Code(err), "invalid "+f.name+" address")
			return
		}
		*f.dst = &addr
	}

	if genre := c.Query("genre"); genre != "" {
		filter.Genre = &genre
	}

	if raw := c.Query("status"); raw != "" {
		status, ok := ledger.ParseAssetStatus(raw)
		if !ok {
			response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid status")
			return
		}
		filter.Status = &status
	}

	items, total, err := h.service.ListAssets(c.Request.Context(), filter, page, limit)
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	data := AssetList{Items: items, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "assets listed", data)
}

// @Summary      Get sound asset
// @Tags         assets
// @Produce      json
// @Param        id   path      int  true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=ledger.Asset}
// @Failure      400  {object}  response.APIResponse "Invalid asset ID"
// @Failure      404  {object}  response.APIResponse "Asset not found"
// @Router       /assets/{id} [get]
func (h *MarketplaceHandler) getAsset(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}

	asset, err := h.service.GetAsset(c.Request.Context(), id)
	if err != nil {
		sendLedgerError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "asset fetched", asset)
}

// @Summary      Check current owner
// @Tags         assets
// @Produce      json
// @Param        id       path  int     true  "Asset ID"
// @Param        address  path  string  true  "Address"
// @Success      200  {object}  response.APIResponse{data=OwnershipStatus}
// @Failure      400  {object}  response.APIResponse "Invalid input"
// @Router       /assets/{id}/owners/{address} [get]
func (h *MarketplaceHandler) isCurrentOwner(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	data := OwnershipStatus{AssetID: id, Address: addr, IsCurrentOwner: h.service.IsCurrentNftOwner(c.Request.Context(), addr, id)}
	response.SendAPIResponse(c, http.StatusOK, true, "ownership checked", data)
}

// @Summary      Asset balance of an address
// @Tags         assets
// @Produce      json
// @Param        id       path  int     true  "Asset ID"
// @Param        address  path  string  true  "Address"
// @Success      200  {object}  response.APIResponse{data=Balance}
// @Failure      400  {object}  response.APIResponse "Invalid input"
// @Router       /assets/{id}/balances/{address} [get]
func (h *MarketplaceHandler) balanceOf(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	data := Balance{AssetID: id, Address: addr, Balance: h.service.BalanceOf(c.Request.Context(), addr, id)}
	response.SendAPIResponse(c, http.StatusOK, true, "balance fetched", data)
}

// @Summary      Get the open auction of an asset
// @Tags         auctions
// @Produce      json
// @Param        id   path      int  true  "Asset ID"
// @Success      200  {object}  response.APIResponse{data=ledger.Auction}
// @Failure      404  {object}  response.APIResponse "Asset not found or not in auction"
// @Router       /assets/{id}/auction [get]
func (h *MarketplaceHandler) getAuction(c *gin.Context) {
	id, ok := parseAssetID(c)
	if !ok {
		return
	}

	auction, err := h.service.GetAuction(c.Request.Context(), id)
	if err != nil {
		if ledger.Code(err) == "no_auction" {
			response.SendError(c, http.StatusNotFound, "no_auction", err.Error())
			return
		}
		sendLedgerError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "auction fetched", auction)
}

// @Summary      Check operator approval
// @Tags         approvals
// @Produce      json
// @Param        owner     path  string  true  "Owner address"
// @Param        operator  path  string  true  "Operator address"
// @Success      200  {object}  response.APIResponse{data=ApprovalStatus}
// @Failure      400  {object}  response.APIResponse "Invalid address"
// @Router       /approvals/{owner}/{operator} [get]
func (h *MarketplaceHandler) isApprovedForAll(c *gin.Context) {
	owner, ok := parseAddressParam(c, "owner")
	if !ok {
		return
	}
	operator, ok := parseAddressParam(c, "operator")
	if !ok {
		return
	}

	data := ApprovalStatus{Owner: owner, Operator: operator, Approved: h.service.IsApprovedForAll(c.Request.Context(), owner, operator)}
	response.SendAPIResponse(c, http.StatusOK, true, "approval checked", data)
}

// @Summary      Pending proceeds of an address
// @Tags         proceeds
// @Produce      json
// @Param        address  path  string  true  "Address"
// @Success      200  {object}  response.APIResponse{data=ProceedsBalance}
// @Failure      400  {object}  response.APIResponse "Invalid address"
// @Router       /proceeds/{address} [get]
func (h *MarketplaceHandler) getProceeds(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	data := ProceedsBalance{Address: addr, Amount: h.service.Proceeds(c.Request.Context(), addr)}
	response.SendAPIResponse(c, http.StatusOK, true, "proceeds fetched", data)
}
