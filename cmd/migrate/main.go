package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-pay/custodia_pay/internal/infra"
)

// schema holds the full database layout. Statements are idempotent so the
// command can be re-run safely.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    phone TEXT NOT NULL UNIQUE,
    pin_hash BYTEA NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    token_version INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
    account_code TEXT PRIMARY KEY,
    native_amount NUMERIC NOT NULL DEFAULT 0 CHECK (native_amount >= 0),
    token_amount NUMERIC NOT NULL DEFAULT 0 CHECK (token_amount >= 0)
);

CREATE TABLE IF NOT EXISTS ledger_totals (
    asset TEXT PRIMARY KEY,
    total NUMERIC NOT NULL DEFAULT 0 CHECK (total >= 0)
);

CREATE TABLE IF NOT EXISTS operations (
    id UUID PRIMARY KEY,
    account_code TEXT NOT NULL,
    kind TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount NUMERIC NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS operations_account_idx ON operations (account_code, created_at);
`

func main() {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must be set")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("schema applied")
}
