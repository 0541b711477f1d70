package transactions

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// PostingRequest is the payload of the deposit and withdraw endpoints.
type PostingRequest struct {
	AccountID   string          `json:"accountId" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" validate:"-"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=255"`
}

func (r PostingRequest) toPosting(idempotencyKey string) (Posting, error) {
	id, err := uuid.Parse(r.AccountID)
	if err != nil {
		return Posting{}, err
	}
	p := Posting{AccountID: id, Amount: r.Amount, IdempotencyKey: strings.TrimSpace(idempotencyKey)}
	if r.Description != nil {
		desc := strings.TrimSpace(*r.Description)
		if desc != "" {
			p.Description = &desc
		}
	}
	return p, nil
}

// ValidateAmount accepts strictly positive amounts with at most two decimal
// places that fit the amount column.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 || amount.GreaterThan(shared.MaxAmount) {
		return shared.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return shared.ErrInvalidAmount
	}
	return nil
}

var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"created_at": "created_at",
	"updatedAt":  "updated_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"type":       "type",
}

// IsSortable reports whether field can order a transaction listing.
func IsSortable(field string) bool {
	if field == "" {
		return true
	}
	_, ok := sortColumns[field]
	return ok
}

func sortColumn(field string) string {
	if col, ok := sortColumns[field]; ok {
		return col
	}
	return "created_at"
}
