package events

import (
	"context"
	"log/slog"
	"math/big"
	"time"
)

const (
	// KindDeposit marks value entering custody.
	KindDeposit = "deposit"
	// KindWithdrawal marks value leaving custody.
	KindWithdrawal = "withdrawal"
	// KindTransfer marks an internal move between accounts.
	KindTransfer = "transfer"
)

// Event describes a completed ledger mutation. Exactly one event is emitted
// per successful operation, after all state changes.
type Event struct {
	Account string
	Kind    string
	Asset   string
	Amount  *big.Int
	// Counter is the receiving account for internal transfers.
	Counter   string
	Reference string
	At        time.Time
}

// Emitter delivers ledger events to downstream systems.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter writes events to the structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a logging emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit writes the event to the structured logger.
func (e *LogEmitter) Emit(_ context.Context, event Event) {
	if e == nil || e.logger == nil {
		return
	}
	attrs := []any{
		"kind", event.Kind,
		"asset", event.Asset,
		"account", event.Account,
		"amount", event.Amount.String(),
		"at", event.At,
	}
	if event.Counter != "" {
		attrs = append(attrs, "counter", event.Counter)
	}
	if event.Reference != "" {
		attrs = append(attrs, "reference", event.Reference)
	}
	e.logger.Info("ledger event", attrs...)
}
