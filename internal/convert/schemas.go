package convert

import "github.com/kursadbilgin/ingest-gate/internal/positional"

// DefaultSchemas is the stock layout set for the seven daily positional
// files. Deployments with different layouts construct the Converter with
// their own schema list.
func DefaultSchemas() []positional.Schema {
	return []positional.Schema{
		{
			Member: "accounts",
			Fields: []positional.Field{
				{Name: "account_id", Start: 0, Length: 10},
				{Name: "customer_id", Start: 10, Length: 10},
				{Name: "branch_code", Start: 20, Length: 5},
				{Name: "currency", Start: 25, Length: 3},
				{Name: "opened_on", Start: 28, Length: 8},
			},
		},
		{
			Member: "balances",
			Fields: []positional.Field{
				{Name: "account_id", Start: 0, Length: 10},
				{Name: "balance", Start: 10, Length: 15},
				{Name: "available", Start: 25, Length: 15},
				{Name: "as_of", Start: 40, Length: 8},
			},
		},
		{
			Member: "cards",
			Fields: []positional.Field{
				{Name: "card_id", Start: 0, Length: 16},
				{Name: "account_id", Start: 16, Length: 10},
				{Name: "card_type", Start: 26, Length: 2},
				{Name: "expires", Start: 28, Length: 4},
				{Name: "status", Start: 32, Length: 1},
			},
		},
		{
			Member: "customers",
			Fields: []positional.Field{
				{Name: "customer_id", Start: 0, Length: 10},
				{Name: "full_name", Start: 10, Length: 40},
				{Name: "national_id", Start: 50, Length: 11},
				{Name: "segment", Start: 61, Length: 2},
			},
		},
		{
			Member: "ledger",
			Fields: []positional.Field{
				{Name: "entry_id", Start: 0, Length: 12},
				{Name: "account_id", Start: 12, Length: 10},
				{Name: "debit", Start: 22, Length: 15},
				{Name: "credit", Start: 37, Length: 15},
				{Name: "posted_on", Start: 52, Length: 8},
			},
		},
		{
			Member: "merchants",
			Fields: []positional.Field{
				{Name: "merchant_id", Start: 0, Length: 10},
				{Name: "name", Start: 10, Length: 40},
				{Name: "mcc", Start: 50, Length: 4},
				{Name: "city", Start: 54, Length: 20},
			},
		},
		{
			Member: "transactions",
			Fields: []positional.Field{
				{Name: "transaction_id", Start: 0, Length: 12},
				{Name: "account_id", Start: 12, Length: 10},
				{Name: "merchant_id", Start: 22, Length: 10},
				{Name: "amount", Start: 32, Length: 15},
				{Name: "currency", Start: 47, Length: 3},
				{Name: "occurred_at", Start: 50, Length: 14},
			},
		},
	}
}
