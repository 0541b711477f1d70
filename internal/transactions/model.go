package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the direction of a posting. It never changes after insert.
type Type string

const (
	TypeDeposit    Type = "DEPOSIT"
	TypeWithdrawal Type = "WITHDRAWAL"
)

// Signed returns the balance delta a posting of amount applies.
func (t Type) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TypeWithdrawal {
		return amount.Neg()
	}
	return amount
}

// Transaction is an immutable posting against one account. Amount is always
// positive; the direction lives in Type.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description,omitempty"`
	AccountID   uuid.UUID       `json:"accountId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
}

// NewTransaction carries the fields recorded for a posting.
type NewTransaction struct {
	Type        Type
	Amount      decimal.Decimal
	Description *string
	AccountID   uuid.UUID
}

// Posting is a deposit or withdrawal request as seen by the Service.
type Posting struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Description    *string
	IdempotencyKey string
}
