package custody

// DepositRequest carries a deposit of either asset. Amounts are decimal
// base-unit strings.
type DepositRequest struct {
	Amount string `json:"amount"`
	// Source is the external address token deposits are pulled from.
	Source string `json:"source,omitempty"`
}

// WithdrawRequest carries a withdrawal of either asset.
type WithdrawRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination,omitempty"`
}

// TransferRequest moves custodied native balance to another account.
type TransferRequest struct {
	ToAccount string `json:"to_account"`
	Amount    string `json:"amount"`
}

// OperationResponse is the API shape of a settled deposit or withdrawal.
type OperationResponse struct {
	OperationID      string `json:"operation_id"`
	Balance          string `json:"balance"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	CompletedAt      string `json:"completed_at"`
}

// TransferResponse is the API shape of an internal transfer.
type TransferResponse struct {
	OperationID string `json:"operation_id"`
	FromBalance string `json:"from_balance"`
	CompletedAt string `json:"completed_at"`
}

// BalancesResponse reports both asset balances for an account.
type BalancesResponse struct {
	Account string `json:"account"`
	Native  string `json:"native"`
	Token   string `json:"token"`
}

// ConvertResponse reports a native-to-reference conversion. Value is at the
// oracle's 8-decimal scale; Reference is the same value in whole units.
type ConvertResponse struct {
	Amount    string `json:"amount"`
	Value     string `json:"value"`
	Reference string `json:"reference"`
}
