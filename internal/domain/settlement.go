package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is published once a deposit reaches a terminal status.
type Settlement struct {
	DepositID   string          `json:"deposit_id"`
	Provider    string          `json:"provider"`
	ProviderRef string          `json:"provider_ref"`
	Status      DepositStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Username    string          `json:"username"`
	GameName    string          `json:"game_name"`
	SettledAt   time.Time       `json:"settled_at"`
}

// NewSettlement builds the settlement message for a terminal deposit.
func NewSettlement(d *Deposit) Settlement {
	s := Settlement{
		DepositID: d.ID,
		Provider:  d.Provider,
		Status:    d.Status,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Username:  d.Username,
		GameName:  d.GameName,
		SettledAt: d.UpdatedAt,
	}
	if d.ProviderRef != nil {
		s.ProviderRef = *d.ProviderRef
	}
	if d.SettledAt != nil {
		s.SettledAt = *d.SettledAt
	}
	return s
}
