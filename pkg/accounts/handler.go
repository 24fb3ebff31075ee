package accounts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"soundwork/pkg/ledger"
	"soundwork/pkg/middleware"
	"soundwork/pkg/response"
)

type AccountHandler struct {
	service AccountService
}

func NewAccountHandler(service AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

func (h *AccountHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/accounts", h.listAccounts)
	router.GET("/accounts/:address", h.getAccount)

	owned := router.Group("/accounts", middleware.RequireCaller())
	owned.POST("", h.createAccount)
	owned.PUT("/:address", h.updateAccount)
	owned.DELETE("/:address", h.deleteAccount)
}

type accountRequest struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Notify *bool  `json:"notify"`
}

func (r accountRequest) notify() bool {
	return r.Notify == nil || *r.Notify
}

func sendAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		response.SendError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, ErrForbidden):
		response.SendError(c, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, ErrAccountNotFound):
		response.SendError(c, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, ErrAccountExists):
		response.SendError(c, http.StatusConflict, "account_exists", err.Error())
	default:
		_ = c.Error(err)
		response.SendError(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func addressParam(c *gin.Context) (ledger.Address, bool) {
	addr, err := ledger.ParseAddress(c.Param("address"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, ledger.Code(err), "invalid address")
		return "", false
	}
	return addr, true
}

func callerOf(c *gin.Context) ledger.Address {
	addr, _ := middleware.Caller(c)
	return addr
}

// @Summary      Register the caller's account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string          true  "Caller address"
// @Param        request           body    accountRequest  true  "Account details"
// @Success      201 {object} response.APIResponse{data=Account}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse "Account exists"
// @Router       /accounts [post]
func (h *AccountHandler) createAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid request payload")
		return
	}

	a, err := h.service.CreateAccount(c.Request.Context(), callerOf(c), req.Name, req.Email, req.notify())
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "account created", a)
}

// @Summary      Update an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        X-Caller-Address  header  string          true  "Caller address"
// @Param        address           path    string          true  "Account address"
// @Param        request           body    accountRequest  true  "Account details"
// @Success      200 {object} response.APIResponse{data=Account}
// @Failure      403 {object} response.APIResponse "Not the account owner"
// @Failure      404 {object} response.APIResponse "Account not found"
// @Router       /accounts/{address} [put]
func (h *AccountHandler) updateAccount(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid request payload")
		return
	}

	a, err := h.service.UpdateAccount(c.Request.Context(), callerOf(c), addr, req.Name, req.Email, req.notify())
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account updated", a)
}

// @Summary      Delete an account
// @Tags         accounts
// @Produce      json
// @Param        X-Caller-Address  header  string  true  "Caller address"
// @Param        address           path    string  true  "Account address"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse "Not the account owner"
// @Failure      404 {object} response.APIResponse "Account not found"
// @Router       /accounts/{address} [delete]
func (h *AccountHandler) deleteAccount(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(c.Request.Context(), callerOf(c), addr); err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account deleted", nil)
}

// @Summary      Get an account
// @Tags         accounts
// @Produce      json
// @Param        address  path  string  true  "Account address"
// @Success      200 {object} response.APIResponse{data=Account}
// @Failure      404 {object} response.APIResponse "Account not found"
// @Router       /accounts/{address} [get]
func (h *AccountHandler) getAccount(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	a, err := h.service.GetAccount(c.Request.Context(), addr)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account fetched", a)
}

// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Param        page   query  int  false  "Page number" default(1)
// @Param        limit  query  int  false  "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=AccountList}
// @Router       /accounts [get]
func (h *AccountHandler) listAccounts(c *gin.Context) {
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

	items, total, err := h.service.ListAccounts(c.Request.Context(), page, limit)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "accounts listed", AccountList{Items: items, Total: total, Page: page, Limit: limit})
}
