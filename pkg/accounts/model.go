package accounts

import (
	"time"

	"soundwork/pkg/ledger"
)

// Account is the contact record behind a wallet address.
type Account struct {
	Address   ledger.Address `json:"address"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Notify    bool           `json:"notify"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AccountList struct {
	Items []Account `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}
