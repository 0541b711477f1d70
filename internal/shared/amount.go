package shared

import "github.com/shopspring/decimal"

// MaxAmount is the largest value a NUMERIC(20,2) column holds. Amounts and
// balances above it are rejected before reaching the store.
var MaxAmount = decimal.RequireFromString("999999999999999999.99")
