package marketplace

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"soundwork/pkg/ledger"
	"soundwork/pkg/response"
)

// StatusFor maps a ledger error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, ledger.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotOffered),
		errors.Is(err, ledger.ErrNoAuction),
		errors.Is(err, ledger.ErrAssetOffered),
		errors.Is(err, ledger.ErrAssetInAuction),
		errors.Is(err, ledger.ErrAuctionEnded),
		errors.Is(err, ledger.ErrAuctionNotEnded),
		errors.Is(err, ledger.ErrNothingToWithdraw):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotApproved):
		return http.StatusPreconditionFailed
	case errors.Is(err, ledger.ErrInsufficientPayment),
		errors.Is(err, ledger.ErrInsufficientBid),
		errors.Is(err, ledger.ErrSelfTrade):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func sendLedgerError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "internal server error"
	}
	response.SendError(c, status, ledger.Code(err), message)
}
