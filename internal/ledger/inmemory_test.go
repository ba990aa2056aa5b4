package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestInMemoryCreditDebitNative(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	balance, err := s.CreditNative(ctx, "acct-a", big.NewInt(10_000), uuid.NewString())
	if err != nil {
		t.Fatalf("credit native: %v", err)
	}
	if balance.Int64() != 10_000 {
		t.Fatalf("expected balance 10000, got %s", balance)
	}

	total, err := s.NativeTotal(ctx)
	if err != nil {
		t.Fatalf("native total: %v", err)
	}
	if total.Int64() != 10_000 {
		t.Fatalf("expected total 10000, got %s", total)
	}

	balance, err = s.DebitNative(ctx, "acct-a", big.NewInt(4_000), uuid.NewString())
	if err != nil {
		t.Fatalf("debit native: %v", err)
	}
	if balance.Int64() != 6_000 {
		t.Fatalf("expected balance 6000, got %s", balance)
	}

	total, _ = s.NativeTotal(ctx)
	if total.Int64() != 6_000 {
		t.Fatalf("expected total 6000, got %s", total)
	}
}

func TestInMemoryDebitInsufficient(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.DebitNative(ctx, "acct-a", big.NewInt(1), uuid.NewString()); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	SeedBalances(s, "acct-a", big.NewInt(100), nil)
	if _, err := s.DebitNative(ctx, "acct-a", big.NewInt(101), uuid.NewString()); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	bal, err := s.Balances(ctx, "acct-a")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal.Native.Int64() != 100 {
		t.Fatalf("failed debit mutated balance: %s", bal.Native)
	}
}

func TestInMemoryTokenColumnIndependent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.CreditToken(ctx, "acct-a", big.NewInt(500), uuid.NewString()); err != nil {
		t.Fatalf("credit token: %v", err)
	}

	total, _ := s.NativeTotal(ctx)
	if total.Sign() != 0 {
		t.Fatalf("token credit moved the native total: %s", total)
	}

	bal, _ := s.Balances(ctx, "acct-a")
	if bal.Token.Int64() != 500 || bal.Native.Sign() != 0 {
		t.Fatalf("unexpected balances native=%s token=%s", bal.Native, bal.Token)
	}

	if _, err := s.DebitToken(ctx, "acct-a", big.NewInt(600), uuid.NewString()); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestInMemoryDuplicateOperation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	opID := uuid.NewString()

	if _, err := s.CreditNative(ctx, "acct-a", big.NewInt(100), opID); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := s.CreditNative(ctx, "acct-a", big.NewInt(100), opID); err != ErrDuplicateOperation {
		t.Fatalf("expected duplicate operation, got %v", err)
	}

	bal, _ := s.Balances(ctx, "acct-a")
	if bal.Native.Int64() != 100 {
		t.Fatalf("duplicate mutated balance: %s", bal.Native)
	}
}

func TestInMemoryUnknownAccountReadsZero(t *testing.T) {
	s := NewInMemory()
	bal, err := s.Balances(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal.Native.Sign() != 0 || bal.Token.Sign() != 0 {
		t.Fatalf("expected zero balances, got native=%s token=%s", bal.Native, bal.Token)
	}
}

func TestInMemoryMoveNativeKeepsTotal(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalances(s, "acct-a", big.NewInt(10_000), nil)

	if err := s.MoveNative(ctx, "acct-a", "acct-b", big.NewInt(2_500), uuid.NewString()); err != nil {
		t.Fatalf("move native: %v", err)
	}

	a, _ := s.Balances(ctx, "acct-a")
	b, _ := s.Balances(ctx, "acct-b")
	if a.Native.Int64() != 7_500 || b.Native.Int64() != 2_500 {
		t.Fatalf("unexpected balances a=%s b=%s", a.Native, b.Native)
	}

	total, _ := s.NativeTotal(ctx)
	if total.Int64() != 10_000 {
		t.Fatalf("move changed the native total: %s", total)
	}

	if err := s.MoveNative(ctx, "acct-b", "acct-a", big.NewInt(9_999), uuid.NewString()); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestInMemoryConcurrentCredits(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opID := uuid.NewString()
			account := fmt.Sprintf("acct-%d", i%4)
			if _, err := s.CreditNative(ctx, account, big.NewInt(250), opID); err != nil {
				t.Errorf("credit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total, _ := s.NativeTotal(ctx)
	if total.Int64() != workers*250 {
		t.Fatalf("total out of sync after concurrency: %s", total)
	}
}
