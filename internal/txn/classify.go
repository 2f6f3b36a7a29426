package txn

import (
	"context"
	"errors"
	"strings"

	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/pkg/types"
)

// codeUserRejected is the EIP-1193 provider code for a denied signature request
const codeUserRejected = 4001

var patterns = []struct {
	kind   types.ErrorKind
	needle []string
}{
	{types.KindUserRejectedSigning, []string{"user denied", "user rejected", "rejected by user", "action_rejected"}},
	{types.KindInsufficientFunds, []string{"insufficient funds"}},
	{types.KindIncorrectFee, []string{"incorrect fee", "fee mismatch", "insufficient payment", "incorrect payment", "incorrect value", "wrong fee"}},
	{types.KindInsufficientStock, []string{"out of stock", "insufficient quantity", "insufficient stock", "not enough stock"}},
	{types.KindInactiveListing, []string{"not active", "inactive"}},
	{types.KindUnauthorized, []string{"only admin", "only the admin", "not authorized", "unauthorized", "not approved"}},
	{types.KindNetworkUnavailable, []string{"connection refused", "connection reset", "timeout", "timed out", "no such host"}},
}

func match(text string) (types.ErrorKind, bool) {
	text = strings.ToLower(text)
	for _, p := range patterns {
		for _, n := range p.needle {
			if strings.Contains(text, n) {
				return p.kind, true
			}
		}
	}
	return "", false
}

// Classify maps a wallet, node or revert error onto the error taxonomy.
// Errors that already carry a specific kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewIndeterminateError("", err)
	}

	var le *types.LedgerError
	if errors.As(err, &le) && le.Kind != types.KindRevertedByContract {
		return err
	}

	reason := err.Error()
	var rpcErr *ledger.RPCError
	switch {
	case le != nil:
		if le.Reason != "" {
			reason = le.Reason
		}
	case errors.As(err, &rpcErr):
		if rpcErr.Code == codeUserRejected {
			return withReason(types.KindUserRejectedSigning, rpcErr.Message, err)
		}
		reason = rpcErr.RevertReason()
	}

	if kind, ok := match(reason); ok {
		return withReason(kind, reason, err)
	}
	if le != nil {
		return err
	}
	return types.NewRevertedError(reason, err)
}

func withReason(kind types.ErrorKind, reason string, cause error) *types.LedgerError {
	e := types.NewError(kind, reason)
	e.Reason = reason
	e.Cause = cause
	return e
}

// stateFor picks the final state a classified send error leaves a transaction in
func stateFor(err error) State {
	switch types.KindOf(err) {
	case types.KindUserRejectedSigning:
		return StateRejected
	case types.KindIndeterminateState:
		return StateIndeterminate
	default:
		return StateFailed
	}
}
