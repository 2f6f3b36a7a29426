package interfaces

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/medrex/medledger/pkg/types"
)

// LedgerCaller issues read-only view calls against the ledger contract.
// The returned JSON is an array holding one element per declared output.
// CallAs sets the caller address for views that depend on msg.sender.
type LedgerCaller interface {
	Call(ctx context.Context, function string, args ...interface{}) (json.RawMessage, error)
	CallAs(ctx context.Context, from, function string, args ...interface{}) (json.RawMessage, error)
}

// ReceiptSource reports the finalization state of submitted transactions.
// A nil receipt with a nil error means the transaction is not finalized yet.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
}

// Wallet is the opaque signing capability of a connected account
type Wallet interface {
	Address() string
	SendTransaction(ctx context.Context, req *types.TxRequest) (string, error)
}

// BalanceReporter is implemented by wallets that can report the account balance
type BalanceReporter interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// ContentStore fetches immutable JSON documents by content address
type ContentStore interface {
	Fetch(ctx context.Context, ref string) (json.RawMessage, error)
}

// WalletProvider returns the signing wallet of a connected account
type WalletProvider interface {
	Wallet(address string) (Wallet, error)
}
