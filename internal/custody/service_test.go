package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/custodia-pay/custodia_pay/internal/events"
	"github.com/custodia-pay/custodia_pay/internal/gateway"
	"github.com/custodia-pay/custodia_pay/internal/ledger"
	"github.com/custodia-pay/custodia_pay/internal/logging"
	"github.com/custodia-pay/custodia_pay/internal/oracle"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad literal %q", s)
	}
	return v
}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(_ context.Context, event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// failingNativeGateway rejects the first n sends, then settles.
type failingNativeGateway struct {
	failures int
	calls    int
}

func (g *failingNativeGateway) Send(_ context.Context, _ string, _ *big.Int) (gateway.Receipt, error) {
	g.calls++
	if g.calls <= g.failures {
		return gateway.Receipt{}, fmt.Errorf("rail rejected the transfer")
	}
	return gateway.Receipt{Reference: "ref", Status: "settled"}, nil
}

// failingTokenGateway rejects every pull and push.
type failingTokenGateway struct{}

func (failingTokenGateway) Pull(_ context.Context, _ string, _ *big.Int) (gateway.Receipt, error) {
	return gateway.Receipt{}, fmt.Errorf("token rail unavailable")
}

func (failingTokenGateway) Push(_ context.Context, _ string, _ *big.Int) (gateway.Receipt, error) {
	return gateway.Receipt{}, fmt.Errorf("token rail unavailable")
}

// reentrantNativeGateway calls back into the service from inside Send, the way
// a malicious payee contract would.
type reentrantNativeGateway struct {
	service *Service
	account string
	amount  *big.Int
	inner   error
}

func (g *reentrantNativeGateway) Send(ctx context.Context, _ string, _ *big.Int) (gateway.Receipt, error) {
	_, g.inner = g.service.WithdrawNative(ctx, g.account, "", g.amount)
	return gateway.Receipt{Reference: "outer", Status: "settled"}, nil
}

func newTestService(t *testing.T, store ledger.Store, native gateway.NativeGateway, tokens gateway.TokenGateway, rate string, capUnits int64) (*Service, *recordingEmitter) {
	t.Helper()
	if store == nil {
		store = ledger.NewInMemory()
	}
	if native == nil {
		native = gateway.StaticNativeGateway{}
	}
	if tokens == nil {
		tokens = gateway.StaticTokenGateway{}
	}
	priceOracle, err := oracle.NewStaticOracle(rate)
	if err != nil {
		t.Fatalf("static oracle: %v", err)
	}
	emitter := &recordingEmitter{}
	svc, err := NewService(store, priceOracle, tokens, native, emitter, logging.Discard(), capUnits)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, emitter
}

func TestNewServiceValidation(t *testing.T) {
	store := ledger.NewInMemory()
	priceOracle, _ := oracle.NewStaticOracle("3934")
	logger := logging.Discard()

	if _, err := NewService(nil, priceOracle, gateway.StaticTokenGateway{}, gateway.StaticNativeGateway{}, nil, logger, 10_000); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("expected missing collaborator, got %v", err)
	}
	if _, err := NewService(store, nil, gateway.StaticTokenGateway{}, gateway.StaticNativeGateway{}, nil, logger, 10_000); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("expected missing collaborator, got %v", err)
	}
	if _, err := NewService(store, priceOracle, nil, gateway.StaticNativeGateway{}, nil, logger, 10_000); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("expected missing collaborator, got %v", err)
	}
	if _, err := NewService(store, priceOracle, gateway.StaticTokenGateway{}, nil, nil, logger, 10_000); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("expected missing collaborator, got %v", err)
	}
	if _, err := NewService(store, priceOracle, gateway.StaticTokenGateway{}, gateway.StaticNativeGateway{}, nil, logger, 0); err == nil {
		t.Fatal("expected error for zero cap")
	}
}

func TestDepositThenWithdrawRoundTrip(t *testing.T) {
	store := ledger.NewInMemory()
	svc, _ := newTestService(t, store, nil, nil, "3934", 10_000)
	ctx := context.Background()
	amount := mustBig(t, "1000000000000000000")

	before, _ := store.NativeTotal(ctx)

	if _, err := svc.DepositNative(ctx, "acct-a", amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.WithdrawNative(ctx, "acct-a", "", amount); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Native.Sign() != 0 {
		t.Fatalf("balance did not return to zero: %s", balances.Native)
	}
	after, _ := store.NativeTotal(ctx)
	if after.Cmp(before) != 0 {
		t.Fatalf("native total drifted: before=%s after=%s", before, after)
	}
}

func TestZeroAmountsRejected(t *testing.T) {
	svc, emitter := newTestService(t, nil, nil, nil, "3934", 10_000)
	ctx := context.Background()
	zero := big.NewInt(0)

	if _, err := svc.DepositNative(ctx, "acct-a", zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.DepositToken(ctx, "acct-a", "", zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.WithdrawNative(ctx, "acct-a", "", zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.WithdrawToken(ctx, "acct-a", "", zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.DepositNative(ctx, "acct-a", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for nil, got %v", err)
	}
	if emitter.count() != 0 {
		t.Fatalf("rejected operations emitted events: %d", emitter.count())
	}
}

func TestWithdrawExceedingBalance(t *testing.T) {
	store := ledger.NewInMemory()
	svc, _ := newTestService(t, store, nil, nil, "3934", 10_000)
	ctx := context.Background()

	ledger.SeedBalances(store, "acct-a", big.NewInt(100), big.NewInt(50))

	if _, err := svc.WithdrawNative(ctx, "acct-a", "", big.NewInt(101)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := svc.WithdrawToken(ctx, "acct-a", "", big.NewInt(51)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Native.Int64() != 100 || balances.Token.Int64() != 50 {
		t.Fatalf("failed withdrawal mutated balances: native=%s token=%s", balances.Native, balances.Token)
	}
}

func TestDepositCapBoundary(t *testing.T) {
	// Rate 2500 reference per native unit, cap 10000: exactly 4 native units
	// reach the cap, one more 8-decimal step crosses it.
	store := ledger.NewInMemory()
	svc, _ := newTestService(t, store, nil, nil, "2500", 10_000)
	ctx := context.Background()

	atCap := mustBig(t, "4000000000000000000")
	if _, err := svc.DepositNative(ctx, "acct-a", atCap); err != nil {
		t.Fatalf("deposit exactly to cap should succeed: %v", err)
	}

	oneStep := mustBig(t, "400000000000000") // worth one whole reference unit
	if _, err := svc.DepositNative(ctx, "acct-a", oneStep); !errors.Is(err, ErrCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}

	total, _ := store.NativeTotal(ctx)
	if total.Cmp(atCap) != 0 {
		t.Fatalf("rejected deposit mutated the total: %s", total)
	}
}

func TestDepositCapProjection(t *testing.T) {
	// Spec example: rate 3934, 2.5 native units project to 9835 reference
	// units, under a 10000 cap; 0.5 more crosses it.
	store := ledger.NewInMemory()
	svc, _ := newTestService(t, store, nil, nil, "3934", 10_000)
	ctx := context.Background()

	if _, err := svc.DepositNative(ctx, "acct-a", mustBig(t, "2500000000000000000")); err != nil {
		t.Fatalf("deposit below cap: %v", err)
	}
	if _, err := svc.DepositNative(ctx, "acct-a", mustBig(t, "500000000000000000")); !errors.Is(err, ErrCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}
}

func TestDepositTokenPullFailureLeavesNoState(t *testing.T) {
	store := ledger.NewInMemory()
	svc, emitter := newTestService(t, store, nil, failingTokenGateway{}, "3934", 10_000)
	ctx := context.Background()

	_, err := svc.DepositToken(ctx, "acct-a", "ext-addr", big.NewInt(1_000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Token.Sign() != 0 {
		t.Fatalf("failed pull left a credit: %s", balances.Token)
	}
	if emitter.count() != 0 {
		t.Fatalf("failed deposit emitted an event")
	}
}

func TestWithdrawNativeSendFailureRestoresBalance(t *testing.T) {
	store := ledger.NewInMemory()
	rail := &failingNativeGateway{failures: 1}
	svc, emitter := newTestService(t, store, rail, nil, "3934", 10_000)
	ctx := context.Background()

	ledger.SeedBalances(store, "acct-a", big.NewInt(5_000), nil)

	_, err := svc.WithdrawNative(ctx, "acct-a", "dest", big.NewInt(2_000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Native.Int64() != 5_000 {
		t.Fatalf("failed send did not restore balance: %s", balances.Native)
	}
	total, _ := store.NativeTotal(ctx)
	if total.Int64() != 5_000 {
		t.Fatalf("failed send left the total off: %s", total)
	}
	if emitter.count() != 0 {
		t.Fatalf("failed withdrawal emitted an event")
	}

	// The guard must have been released: the retry settles.
	if _, err := svc.WithdrawNative(ctx, "acct-a", "dest", big.NewInt(2_000)); err != nil {
		t.Fatalf("retry after failed send: %v", err)
	}
}

func TestWithdrawTokenPushFailureRestoresBalance(t *testing.T) {
	store := ledger.NewInMemory()
	svc, _ := newTestService(t, store, nil, failingTokenGateway{}, "3934", 10_000)
	ctx := context.Background()

	ledger.SeedBalances(store, "acct-a", nil, big.NewInt(3_000))

	_, err := svc.WithdrawToken(ctx, "acct-a", "dest", big.NewInt(1_000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Token.Int64() != 3_000 {
		t.Fatalf("failed push did not restore balance: %s", balances.Token)
	}
}

func TestReentrantWithdrawalRejected(t *testing.T) {
	store := ledger.NewInMemory()
	rail := &reentrantNativeGateway{amount: big.NewInt(1_000)}
	svc, _ := newTestService(t, store, rail, nil, "3934", 10_000)
	rail.service = svc
	rail.account = "acct-a"
	ctx := context.Background()

	ledger.SeedBalances(store, "acct-a", big.NewInt(2_000), nil)

	if _, err := svc.WithdrawNative(ctx, "acct-a", "", big.NewInt(1_000)); err != nil {
		t.Fatalf("outer withdrawal: %v", err)
	}
	if !errors.Is(rail.inner, ErrWithdrawalInProgress) {
		t.Fatalf("expected reentrant call to fail with withdrawal in progress, got %v", rail.inner)
	}

	// Only the outer withdrawal may have debited.
	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Native.Int64() != 1_000 {
		t.Fatalf("reentrancy double-spent: balance %s", balances.Native)
	}
	total, _ := store.NativeTotal(ctx)
	if total.Int64() != 1_000 {
		t.Fatalf("total off after reentrancy attempt: %s", total)
	}
}

func TestTransferNative(t *testing.T) {
	store := ledger.NewInMemory()
	svc, emitter := newTestService(t, store, nil, nil, "3934", 10_000)
	ctx := context.Background()

	ledger.SeedBalances(store, "acct-a", big.NewInt(10_000), nil)

	outcome, err := svc.TransferNative(ctx, "acct-a", "acct-b", big.NewInt(4_000))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if outcome.FromBalance.Int64() != 6_000 {
		t.Fatalf("expected from balance 6000, got %s", outcome.FromBalance)
	}

	total, _ := store.NativeTotal(ctx)
	if total.Int64() != 10_000 {
		t.Fatalf("transfer changed the native total: %s", total)
	}

	if _, err := svc.TransferNative(ctx, "acct-a", "acct-a", big.NewInt(1)); err == nil {
		t.Fatal("expected self-transfer to be rejected")
	}
	if _, err := svc.TransferNative(ctx, "acct-b", "acct-a", big.NewInt(5_000)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if emitter.count() != 1 {
		t.Fatalf("expected exactly one event, got %d", emitter.count())
	}
}

func TestConvertToReference(t *testing.T) {
	svc, _ := newTestService(t, nil, nil, nil, "3934", 10_000)
	ctx := context.Background()

	value, err := svc.ConvertToReference(ctx, mustBig(t, "1000000000000000000"))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if value.String() != "393400000000" {
		t.Fatalf("expected 393400000000, got %s", value)
	}

	// Conversion is a pure read.
	balances, _ := svc.Balances(ctx, "acct-a")
	if balances.Native.Sign() != 0 {
		t.Fatalf("convert mutated state")
	}
}

func TestEventsEmittedOncePerSuccess(t *testing.T) {
	store := ledger.NewInMemory()
	svc, emitter := newTestService(t, store, nil, nil, "3934", 10_000)
	ctx := context.Background()
	amount := mustBig(t, "1000000000000000000")

	if _, err := svc.DepositNative(ctx, "acct-a", amount); err != nil {
		t.Fatalf("deposit native: %v", err)
	}
	if _, err := svc.DepositToken(ctx, "acct-a", "", big.NewInt(500)); err != nil {
		t.Fatalf("deposit token: %v", err)
	}
	if _, err := svc.WithdrawNative(ctx, "acct-a", "", amount); err != nil {
		t.Fatalf("withdraw native: %v", err)
	}
	if _, err := svc.WithdrawToken(ctx, "acct-a", "", big.NewInt(500)); err != nil {
		t.Fatalf("withdraw token: %v", err)
	}

	if emitter.count() != 4 {
		t.Fatalf("expected 4 events, got %d", emitter.count())
	}

	kinds := map[string]int{}
	assets := map[string]int{}
	for _, e := range emitter.events {
		kinds[e.Kind]++
		assets[e.Asset]++
	}
	if kinds[events.KindDeposit] != 2 || kinds[events.KindWithdrawal] != 2 {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	if assets[ledger.AssetNative] != 2 || assets[ledger.AssetToken] != 2 {
		t.Fatalf("unexpected assets %v", assets)
	}
}
