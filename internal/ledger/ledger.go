package ledger

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrInsufficientBalance occurs when a debit exceeds the account's recorded
	// balance for that asset.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateOperation indicates the provided operation identifier was
	// already recorded and the mutation must not be applied again.
	ErrDuplicateOperation = errors.New("duplicate operation")
)

const (
	// AssetNative is the native asset column (18-decimal base units).
	AssetNative = "native"
	// AssetToken is the fungible token column (raw base units).
	AssetToken = "token"
)

// Balances is an account's recorded holdings of both assets.
type Balances struct {
	Native *big.Int
	Token  *big.Int
}

// Store is the balance store contract implemented by ledger backends.
// Accounts come into existence on first credit; a zero-valued record is
// indistinguishable from an absent one. Every mutation is atomic within the
// backend and records an audit row keyed by opID.
type Store interface {
	EnsureAccount(ctx context.Context, account string) error
	Balances(ctx context.Context, account string) (Balances, error)

	// NativeTotal reports the running sum of all accounts' native balances.
	NativeTotal(ctx context.Context) (*big.Int, error)

	// CreditNative adds amount to the account's native balance and the global
	// native total together, returning the new account balance.
	CreditNative(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error)
	// DebitNative removes amount from the account's native balance and the
	// global native total together.
	DebitNative(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error)

	CreditToken(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error)
	DebitToken(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error)

	// MoveNative shifts native balance between two accounts; the global native
	// total is unchanged.
	MoveNative(ctx context.Context, from, to string, amount *big.Int, opID string) error
}
