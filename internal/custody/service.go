package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-pay/custodia_pay/internal/events"
	"github.com/custodia-pay/custodia_pay/internal/gateway"
	"github.com/custodia-pay/custodia_pay/internal/ledger"
	"github.com/custodia-pay/custodia_pay/internal/numeric"
	"github.com/custodia-pay/custodia_pay/internal/oracle"
)

var (
	// ErrInvalidAmount occurs when a zero or missing amount is supplied.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrCapExceeded occurs when a native deposit would push the projected
	// reference-currency value of custodied native funds past the cap.
	ErrCapExceeded = errors.New("deposit cap exceeded")

	// ErrTransferFailed indicates an external value movement did not settle.
	// The gateway's failure detail is attached to the returned error.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrWithdrawalInProgress occurs when a withdrawal is attempted while
	// another one holds the withdrawal guard.
	ErrWithdrawalInProgress = errors.New("withdrawal already in progress")

	// ErrMissingCollaborator indicates the service was constructed without a
	// required store, oracle or gateway reference.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrOracleRate occurs when the price feed reports a non-positive rate.
	ErrOracleRate = errors.New("oracle reported a non-positive rate")

	// ErrOracleUnavailable wraps a failed price feed read.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// Service is the custodial ledger: it holds per-account balances of the native
// asset and the token, enforces the reference-currency deposit ceiling via the
// price oracle, and mediates all value movement through the settlement
// gateways.
type Service struct {
	store   ledger.Store
	oracle  oracle.PriceOracle
	tokens  gateway.TokenGateway
	native  gateway.NativeGateway
	emitter events.Emitter
	logger  *slog.Logger

	// depositCap is the ceiling at the oracle's 8-decimal scale. Immutable.
	depositCap *big.Int

	// withdrawMu is the withdrawal guard: held for the whole of a withdrawal,
	// external call included, and released on every exit path. A second
	// withdrawal arriving while it is held fails instead of waiting.
	withdrawMu sync.Mutex

	// depositMu serializes native deposits so concurrent cap checks cannot
	// jointly overshoot the ceiling.
	depositMu sync.Mutex
}

// NewService wires the ledger core. depositCapUnits is the ceiling in whole
// reference-currency units; it is scaled to the oracle's precision here.
func NewService(store ledger.Store, priceOracle oracle.PriceOracle, tokens gateway.TokenGateway, native gateway.NativeGateway, emitter events.Emitter, logger *slog.Logger, depositCapUnits int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: ledger store", ErrMissingCollaborator)
	}
	if priceOracle == nil {
		return nil, fmt.Errorf("%w: price oracle", ErrMissingCollaborator)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token gateway", ErrMissingCollaborator)
	}
	if native == nil {
		return nil, fmt.Errorf("%w: native gateway", ErrMissingCollaborator)
	}
	if depositCapUnits <= 0 {
		return nil, fmt.Errorf("deposit cap must be positive, got %d", depositCapUnits)
	}
	return &Service{
		store:      store,
		oracle:     priceOracle,
		tokens:     tokens,
		native:     native,
		emitter:    emitter,
		logger:     logger,
		depositCap: numeric.ScaleReferenceUnits(depositCapUnits),
	}, nil
}

// Outcome describes the ledger result of a deposit or withdrawal.
type Outcome struct {
	OperationID      string
	Balance          *big.Int
	GatewayReference string
	CompletedAt      time.Time
}

// DepositNative credits native value to the account, subject to the
// reference-currency cap at the current oracle rate.
func (s *Service) DepositNative(ctx context.Context, account string, amount *big.Int) (Outcome, error) {
	if err := validAmount(amount); err != nil {
		return Outcome{}, err
	}

	s.depositMu.Lock()
	defer s.depositMu.Unlock()

	rate, err := s.readRate(ctx)
	if err != nil {
		return Outcome{}, err
	}

	total, err := s.store.NativeTotal(ctx)
	if err != nil {
		return Outcome{}, err
	}

	projected := numeric.NativeToReference(new(big.Int).Add(total, amount), rate)
	if projected.Cmp(s.depositCap) > 0 {
		return Outcome{}, fmt.Errorf("%w: projected %s reference units against cap %s",
			ErrCapExceeded, numeric.FormatReference(projected), numeric.FormatReference(s.depositCap))
	}

	opID := uuid.NewString()
	balance, err := s.store.CreditNative(ctx, account, amount, opID)
	if err != nil {
		return Outcome{}, err
	}

	s.emit(ctx, events.Event{
		Account: account,
		Kind:    events.KindDeposit,
		Asset:   ledger.AssetNative,
		Amount:  amount,
		At:      time.Now().UTC(),
	})

	return Outcome{OperationID: opID, Balance: balance, CompletedAt: time.Now().UTC()}, nil
}

// DepositToken pulls token value from the external source into custody and
// credits the account. The credit is staged: it commits only after the pull
// has settled, so a failed pull leaves no partial state.
func (s *Service) DepositToken(ctx context.Context, account, source string, amount *big.Int) (Outcome, error) {
	if err := validAmount(amount); err != nil {
		return Outcome{}, err
	}
	if source == "" {
		source = account
	}

	receipt, err := s.tokens.Pull(ctx, source, amount)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: token pull: %s", ErrTransferFailed, err)
	}

	opID := uuid.NewString()
	balance, err := s.store.CreditToken(ctx, account, amount, opID)
	if err != nil {
		return Outcome{}, err
	}

	s.emit(ctx, events.Event{
		Account:   account,
		Kind:      events.KindDeposit,
		Asset:     ledger.AssetToken,
		Amount:    amount,
		Reference: receipt.Reference,
		At:        time.Now().UTC(),
	})

	return Outcome{OperationID: opID, Balance: balance, GatewayReference: receipt.Reference, CompletedAt: time.Now().UTC()}, nil
}

// WithdrawNative debits the account and sends native value to the destination.
// State is updated before the outbound call; a failed send is compensated by
// restoring the debit.
func (s *Service) WithdrawNative(ctx context.Context, account, destination string, amount *big.Int) (Outcome, error) {
	if !s.withdrawMu.TryLock() {
		return Outcome{}, ErrWithdrawalInProgress
	}
	defer s.withdrawMu.Unlock()

	if err := validAmount(amount); err != nil {
		return Outcome{}, err
	}
	if destination == "" {
		destination = account
	}

	opID := uuid.NewString()
	balance, err := s.store.DebitNative(ctx, account, amount, opID)
	if err != nil {
		return Outcome{}, err
	}

	receipt, err := s.native.Send(ctx, destination, amount)
	if err != nil {
		s.compensate(ctx, account, ledger.AssetNative, amount)
		return Outcome{}, fmt.Errorf("%w: native send: %s", ErrTransferFailed, err)
	}

	s.emit(ctx, events.Event{
		Account:   account,
		Kind:      events.KindWithdrawal,
		Asset:     ledger.AssetNative,
		Amount:    amount,
		Reference: receipt.Reference,
		At:        time.Now().UTC(),
	})

	return Outcome{OperationID: opID, Balance: balance, GatewayReference: receipt.Reference, CompletedAt: time.Now().UTC()}, nil
}

// WithdrawToken debits the account's token balance and pushes the value to the
// destination through the token gateway.
func (s *Service) WithdrawToken(ctx context.Context, account, destination string, amount *big.Int) (Outcome, error) {
	if !s.withdrawMu.TryLock() {
		return Outcome{}, ErrWithdrawalInProgress
	}
	defer s.withdrawMu.Unlock()

	if err := validAmount(amount); err != nil {
		return Outcome{}, err
	}
	if destination == "" {
		destination = account
	}

	opID := uuid.NewString()
	balance, err := s.store.DebitToken(ctx, account, amount, opID)
	if err != nil {
		return Outcome{}, err
	}

	receipt, err := s.tokens.Push(ctx, destination, amount)
	if err != nil {
		s.compensate(ctx, account, ledger.AssetToken, amount)
		return Outcome{}, fmt.Errorf("%w: token push: %s", ErrTransferFailed, err)
	}

	s.emit(ctx, events.Event{
		Account:   account,
		Kind:      events.KindWithdrawal,
		Asset:     ledger.AssetToken,
		Amount:    amount,
		Reference: receipt.Reference,
		At:        time.Now().UTC(),
	})

	return Outcome{OperationID: opID, Balance: balance, GatewayReference: receipt.Reference, CompletedAt: time.Now().UTC()}, nil
}

// TransferOutcome describes an internal native move between accounts.
type TransferOutcome struct {
	OperationID string
	FromBalance *big.Int
	CompletedAt time.Time
}

// TransferNative moves custodied native balance between two accounts. No value
// leaves custody, so neither the oracle nor the withdrawal guard is involved
// and the global native total is unchanged.
func (s *Service) TransferNative(ctx context.Context, from, to string, amount *big.Int) (TransferOutcome, error) {
	if err := validAmount(amount); err != nil {
		return TransferOutcome{}, err
	}
	if to == "" || to == from {
		return TransferOutcome{}, fmt.Errorf("transfer requires a distinct destination account")
	}

	opID := uuid.NewString()
	if err := s.store.MoveNative(ctx, from, to, amount, opID); err != nil {
		return TransferOutcome{}, err
	}

	s.emit(ctx, events.Event{
		Account: from,
		Kind:    events.KindTransfer,
		Asset:   ledger.AssetNative,
		Amount:  amount,
		Counter: to,
		At:      time.Now().UTC(),
	})

	balances, err := s.store.Balances(ctx, from)
	if err != nil {
		return TransferOutcome{}, err
	}
	return TransferOutcome{OperationID: opID, FromBalance: balances.Native, CompletedAt: time.Now().UTC()}, nil
}

// Balances is a pure read of the account's holdings; unknown accounts read as
// zeros and the call never mutates state.
func (s *Service) Balances(ctx context.Context, account string) (ledger.Balances, error) {
	return s.store.Balances(ctx, account)
}

// ConvertToReference converts a native base-unit amount into reference
// currency at the current oracle rate, truncating toward zero.
func (s *Service) ConvertToReference(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	rate, err := s.readRate(ctx)
	if err != nil {
		return nil, err
	}
	return numeric.NativeToReference(amount, rate), nil
}

func (s *Service) readRate(ctx context.Context) (*big.Int, error) {
	rate, err := s.oracle.Rate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOracleUnavailable, err)
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrOracleRate
	}
	return rate, nil
}

// compensate restores a debited balance after a failed outbound settlement.
func (s *Service) compensate(ctx context.Context, account, asset string, amount *big.Int) {
	opID := uuid.NewString()
	var err error
	if asset == ledger.AssetNative {
		_, err = s.store.CreditNative(ctx, account, amount, opID)
	} else {
		_, err = s.store.CreditToken(ctx, account, amount, opID)
	}
	if err != nil && s.logger != nil {
		s.logger.Error("failed to restore balance after settlement failure",
			"account", account, "asset", asset, "amount", amount.String(), "error", err)
	}
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, event)
	}
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
