package gateway

import (
	"context"
	"math/big"

	"github.com/google/uuid"
)

// Receipt captures the settlement outcome reported by an external gateway.
type Receipt struct {
	Reference string
	Status    string
}

// TokenGateway moves the token asset between custody and external holders.
// Calls are all-or-nothing: an error means no value moved.
type TokenGateway interface {
	// Pull draws amount of the token from the named source into custody.
	Pull(ctx context.Context, from string, amount *big.Int) (Receipt, error)
	// Push sends amount of the token out of custody to the named destination.
	Push(ctx context.Context, to string, amount *big.Int) (Receipt, error)
}

// NativeGateway settles outbound native-asset value.
type NativeGateway interface {
	Send(ctx context.Context, to string, amount *big.Int) (Receipt, error)
}

// StaticTokenGateway simulates a token rail that approves every movement.
type StaticTokenGateway struct{}

// Pull approves the inbound movement with a synthetic reference.
func (StaticTokenGateway) Pull(_ context.Context, _ string, _ *big.Int) (Receipt, error) {
	return Receipt{Reference: uuid.NewString(), Status: "settled"}, nil
}

// Push approves the outbound movement with a synthetic reference.
func (StaticTokenGateway) Push(_ context.Context, _ string, _ *big.Int) (Receipt, error) {
	return Receipt{Reference: uuid.NewString(), Status: "settled"}, nil
}

// StaticNativeGateway simulates a native settlement rail that always succeeds.
type StaticNativeGateway struct{}

// Send approves the outbound transfer with a synthetic reference.
func (StaticNativeGateway) Send(_ context.Context, _ string, _ *big.Int) (Receipt, error) {
	return Receipt{Reference: uuid.NewString(), Status: "settled"}, nil
}
