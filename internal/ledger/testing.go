package ledger

import "math/big"

// SeedBalances is a test helper that plants balances for an account when using
// the in-memory store. The global native total is adjusted to match.
func SeedBalances(s Store, account string, native, token *big.Int) {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	rec := mem.get(account)
	if native != nil {
		mem.nativeTotal.Sub(mem.nativeTotal, rec.native)
		rec.native.Set(native)
		mem.nativeTotal.Add(mem.nativeTotal, native)
	}
	if token != nil {
		rec.token.Set(token)
	}
}
