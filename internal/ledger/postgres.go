package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists balances in PostgreSQL. Amounts are stored as NUMERIC
// and travel to and from the database as decimal strings so 18-decimal native
// magnitudes never pass through int64.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed balance store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount guarantees a zero-valued balance row exists for the account.
func (s *PostgresStore) EnsureAccount(ctx context.Context, account string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (account_code, native_amount, token_amount)
        VALUES ($1, 0, 0) ON CONFLICT (account_code) DO NOTHING`, account)
	return err
}

// Balances returns the recorded holdings for the account, zeros if absent.
func (s *PostgresStore) Balances(ctx context.Context, account string) (Balances, error) {
	row := s.db.QueryRow(ctx, `SELECT native_amount::text, token_amount::text
        FROM accounts WHERE account_code = $1`, account)
	var nativeStr, tokenStr string
	if err := row.Scan(&nativeStr, &tokenStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balances{Native: new(big.Int), Token: new(big.Int)}, nil
		}
		return Balances{}, err
	}
	native, err := parseNumeric(nativeStr)
	if err != nil {
		return Balances{}, err
	}
	token, err := parseNumeric(tokenStr)
	if err != nil {
		return Balances{}, err
	}
	return Balances{Native: native, Token: token}, nil
}

// NativeTotal reads the global native total.
func (s *PostgresStore) NativeTotal(ctx context.Context) (*big.Int, error) {
	row := s.db.QueryRow(ctx, `SELECT total::text FROM ledger_totals WHERE asset = $1`, AssetNative)
	var totalStr string
	if err := row.Scan(&totalStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return parseNumeric(totalStr)
}

// CreditNative applies a native credit and bumps the global total in one transaction.
func (s *PostgresStore) CreditNative(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	return s.credit(ctx, account, amount, opID, AssetNative)
}

// DebitNative applies a native debit and lowers the global total in one transaction.
func (s *PostgresStore) DebitNative(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	return s.debit(ctx, account, amount, opID, AssetNative)
}

// CreditToken applies a token credit.
func (s *PostgresStore) CreditToken(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	return s.credit(ctx, account, amount, opID, AssetToken)
}

// DebitToken applies a token debit.
func (s *PostgresStore) DebitToken(ctx context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	return s.debit(ctx, account, amount, opID, AssetToken)
}

// MoveNative rebalances native value between two accounts; the global total is untouched.
func (s *PostgresStore) MoveNative(ctx context.Context, from, to string, amount *big.Int, opID string) error {
	if err := validateMutation(amount, opID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := reserveOperation(ctx, tx, opID, from, "move", AssetNative, amount); err != nil {
		return err
	}

	// Lock in a fixed order to avoid deadlocks between concurrent moves.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	for _, code := range []string{first, second} {
		if err := ensureAccountTx(ctx, tx, code); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE account_code = $1 FOR UPDATE`, code); err != nil {
			return err
		}
	}

	balance, err := lockedBalance(ctx, tx, from, AssetNative)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET native_amount = native_amount - $1::numeric
        WHERE account_code = $2`, amount.String(), from); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET native_amount = native_amount + $1::numeric
        WHERE account_code = $2`, amount.String(), to); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) credit(ctx context.Context, account string, amount *big.Int, opID, asset string) (*big.Int, error) {
	if err := validateMutation(amount, opID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := reserveOperation(ctx, tx, opID, account, "credit", asset, amount); err != nil {
		return nil, err
	}

	column := columnFor(asset)
	query := fmt.Sprintf(`INSERT INTO accounts (account_code, %s)
        VALUES ($1, $2::numeric)
        ON CONFLICT (account_code) DO UPDATE SET %s = accounts.%s + EXCLUDED.%s
        RETURNING %s::text`, column, column, column, column, column)
	var balanceStr string
	if err := tx.QueryRow(ctx, query, account, amount.String()).Scan(&balanceStr); err != nil {
		return nil, err
	}

	if asset == AssetNative {
		if err := adjustNativeTotal(ctx, tx, amount.String()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return parseNumeric(balanceStr)
}

func (s *PostgresStore) debit(ctx context.Context, account string, amount *big.Int, opID, asset string) (*big.Int, error) {
	if err := validateMutation(amount, opID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := reserveOperation(ctx, tx, opID, account, "debit", asset, amount); err != nil {
		return nil, err
	}

	balance, err := lockedBalance(ctx, tx, account, asset)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	column := columnFor(asset)
	query := fmt.Sprintf(`UPDATE accounts SET %s = %s - $1::numeric
        WHERE account_code = $2 RETURNING %s::text`, column, column, column)
	var balanceStr string
	if err := tx.QueryRow(ctx, query, amount.String(), account).Scan(&balanceStr); err != nil {
		return nil, err
	}

	if asset == AssetNative {
		if err := adjustNativeTotal(ctx, tx, "-"+amount.String()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return parseNumeric(balanceStr)
}

// lockedBalance reads the asset balance for the account under FOR UPDATE.
// A missing row counts as a zero balance, which for a debit means insufficient.
func lockedBalance(ctx context.Context, tx pgx.Tx, account, asset string) (*big.Int, error) {
	query := fmt.Sprintf(`SELECT %s::text FROM accounts WHERE account_code = $1 FOR UPDATE`, columnFor(asset))
	var balanceStr string
	if err := tx.QueryRow(ctx, query, account).Scan(&balanceStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return parseNumeric(balanceStr)
}

func ensureAccountTx(ctx context.Context, tx pgx.Tx, account string) error {
	_, err := tx.Exec(ctx, `INSERT INTO accounts (account_code, native_amount, token_amount)
        VALUES ($1, 0, 0) ON CONFLICT (account_code) DO NOTHING`, account)
	return err
}

// reserveOperation records the audit row; a pre-existing id aborts the mutation.
func reserveOperation(ctx context.Context, tx pgx.Tx, opID, account, kind, asset string, amount *big.Int) error {
	id, err := uuid.Parse(opID)
	if err != nil {
		return fmt.Errorf("invalid operation id: %w", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM operations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrDuplicateOperation
	}
	_, err = tx.Exec(ctx, `INSERT INTO operations (id, account_code, kind, asset, amount, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, NOW())`, id, account, kind, asset, amount.String())
	return err
}

func adjustNativeTotal(ctx context.Context, tx pgx.Tx, delta string) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_totals (asset, total)
        VALUES ($1, $2::numeric)
        ON CONFLICT (asset) DO UPDATE SET total = ledger_totals.total + EXCLUDED.total`,
		AssetNative, delta)
	return err
}

func columnFor(asset string) string {
	if asset == AssetToken {
		return "token_amount"
	}
	return "native_amount"
}

func validateMutation(amount *big.Int, opID string) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if opID == "" {
		return fmt.Errorf("operation id is required")
	}
	return nil
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric value %q", s)
	}
	return v, nil
}
