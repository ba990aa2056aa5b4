package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

type record struct {
	native *big.Int
	token  *big.Int
}

type inMemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*record
	nativeTotal *big.Int
	operations  map[string]struct{}
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and dev mode.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:    make(map[string]*record),
		nativeTotal: new(big.Int),
		operations:  make(map[string]struct{}),
	}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(account)
	return nil
}

// get returns the record for account, creating a zero record if absent.
// Callers must hold the write lock.
func (s *inMemoryStore) get(account string) *record {
	rec, ok := s.accounts[account]
	if !ok {
		rec = &record{native: new(big.Int), token: new(big.Int)}
		s.accounts[account] = rec
	}
	return rec
}

func (s *inMemoryStore) Balances(_ context.Context, account string) (Balances, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[account]
	if !ok {
		return Balances{Native: new(big.Int), Token: new(big.Int)}, nil
	}
	return Balances{
		Native: new(big.Int).Set(rec.native),
		Token:  new(big.Int).Set(rec.token),
	}, nil
}

func (s *inMemoryStore) NativeTotal(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.nativeTotal), nil
}

func (s *inMemoryStore) CreditNative(_ context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutation(amount, opID); err != nil {
		return nil, err
	}

	rec := s.get(account)
	rec.native.Add(rec.native, amount)
	s.nativeTotal.Add(s.nativeTotal, amount)
	s.operations[opID] = struct{}{}
	return new(big.Int).Set(rec.native), nil
}

func (s *inMemoryStore) DebitNative(_ context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutation(amount, opID); err != nil {
		return nil, err
	}

	rec := s.get(account)
	if rec.native.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	rec.native.Sub(rec.native, amount)
	s.nativeTotal.Sub(s.nativeTotal, amount)
	s.operations[opID] = struct{}{}
	return new(big.Int).Set(rec.native), nil
}

func (s *inMemoryStore) CreditToken(_ context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutation(amount, opID); err != nil {
		return nil, err
	}

	rec := s.get(account)
	rec.token.Add(rec.token, amount)
	s.operations[opID] = struct{}{}
	return new(big.Int).Set(rec.token), nil
}

func (s *inMemoryStore) DebitToken(_ context.Context, account string, amount *big.Int, opID string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutation(amount, opID); err != nil {
		return nil, err
	}

	rec := s.get(account)
	if rec.token.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	rec.token.Sub(rec.token, amount)
	s.operations[opID] = struct{}{}
	return new(big.Int).Set(rec.token), nil
}

func (s *inMemoryStore) MoveNative(_ context.Context, from, to string, amount *big.Int, opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutation(amount, opID); err != nil {
		return err
	}

	fromRec := s.get(from)
	if fromRec.native.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toRec := s.get(to)
	fromRec.native.Sub(fromRec.native, amount)
	toRec.native.Add(toRec.native, amount)
	s.operations[opID] = struct{}{}
	return nil
}

// checkMutation guards every write path. Callers must hold the write lock.
func (s *inMemoryStore) checkMutation(amount *big.Int, opID string) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if opID == "" {
		return fmt.Errorf("operation id is required")
	}
	if _, exists := s.operations[opID]; exists {
		return ErrDuplicateOperation
	}
	return nil
}
