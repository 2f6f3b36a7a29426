package types

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrorKind classifies failures surfaced by the ledger layer
type ErrorKind string

const (
	KindWalletNotConnected  ErrorKind = "wallet_not_connected"
	KindMalformedAmount     ErrorKind = "malformed_amount"
	KindInvalidQuantity     ErrorKind = "invalid_quantity"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindInactiveListing     ErrorKind = "inactive_listing"
	KindStaleQuote          ErrorKind = "stale_quote"
	KindIncorrectFee        ErrorKind = "incorrect_fee"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindUserRejectedSigning ErrorKind = "user_rejected_signing"
	KindTransactionInFlight ErrorKind = "transaction_in_flight"
	KindIndeterminateState  ErrorKind = "indeterminate_state"
	KindRevertedByContract  ErrorKind = "reverted_by_contract"
	KindNetworkUnavailable  ErrorKind = "network_unavailable"
	KindDegradedMetadata    ErrorKind = "degraded_metadata"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidInput        ErrorKind = "invalid_input"
)

// LedgerError represents a structured error in the ledger layer
type LedgerError struct {
	Kind    ErrorKind              `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (reason: %s)", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Is matches another LedgerError by kind, so errors.Is(err, ErrStaleQuote) works
func (e *LedgerError) Is(target error) bool {
	var t *LedgerError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// UserMessage returns the human-readable text shown to the end user
func (e *LedgerError) UserMessage() string {
	switch e.Kind {
	case KindWalletNotConnected:
		return "Connect your wallet to continue."
	case KindMalformedAmount:
		return "The amount entered is not a valid number."
	case KindInvalidQuantity:
		return "Quantity must be at least 1."
	case KindInsufficientStock:
		return "Not enough stock is available for this order."
	case KindInactiveListing:
		return "This medicine is currently not available for purchase."
	case KindStaleQuote:
		return "The price changed since it was shown. Review the new amount and try again."
	case KindIncorrectFee:
		return "The attached amount does not match the required fee."
	case KindInsufficientFunds:
		return "Your wallet balance is too low for this transaction."
	case KindUserRejectedSigning:
		return "The transaction was rejected in your wallet."
	case KindTransactionInFlight:
		return "Another transaction is still being processed. Please wait for it to finish."
	case KindIndeterminateState:
		return "The transaction outcome is not known yet. Refresh to check its status."
	case KindRevertedByContract:
		if e.Reason != "" {
			return "The contract rejected the transaction: " + e.Reason
		}
		return "The contract rejected the transaction."
	case KindNetworkUnavailable:
		return "The network is unavailable. Try again shortly."
	case KindDegradedMetadata:
		return "Some details could not be loaded."
	case KindUnauthorized:
		return "Your account is not allowed to perform this action."
	case KindNotFound:
		return "The requested record does not exist."
	default:
		return e.Message
	}
}

// Fatal reports whether the error aborts a workflow
func (e *LedgerError) Fatal() bool {
	return e.Kind != KindDegradedMetadata
}

// Local reports whether the error is detected before any network call
func (e *LedgerError) Local() bool {
	switch e.Kind {
	case KindWalletNotConnected, KindMalformedAmount, KindInvalidQuantity, KindInsufficientStock,
		KindInactiveListing, KindStaleQuote, KindTransactionInFlight, KindUnauthorized, KindInvalidInput:
		return true
	}
	return false
}

// KindOf extracts the error kind, or "" when err is not a LedgerError
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err is a LedgerError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NewError creates a LedgerError of the given kind
func NewError(kind ErrorKind, message string) *LedgerError {
	return &LedgerError{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
	}
}

// NewWalletNotConnectedError creates a wallet not connected error
func NewWalletNotConnectedError() *LedgerError {
	return NewError(KindWalletNotConnected, "no wallet connected for this session")
}

// NewMalformedAmountError creates a malformed amount error
func NewMalformedAmountError(input, why string) *LedgerError {
	err := NewError(KindMalformedAmount, why)
	err.Details = map[string]interface{}{"input": input}
	return err
}

// NewInvalidQuantityError creates an invalid quantity error
func NewInvalidQuantityError(requested int64) *LedgerError {
	err := NewError(KindInvalidQuantity, fmt.Sprintf("requested quantity %d must be positive", requested))
	err.Details = map[string]interface{}{"requested": requested}
	return err
}

// NewInsufficientStockError creates an insufficient stock error
func NewInsufficientStockError(requested, available uint64) *LedgerError {
	err := NewError(KindInsufficientStock, fmt.Sprintf("requested %d but only %d in stock", requested, available))
	err.Details = map[string]interface{}{"requested": requested, "available": available}
	return err
}

// NewInactiveListingError creates an inactive listing error
func NewInactiveListingError(medicineID uint64) *LedgerError {
	err := NewError(KindInactiveListing, fmt.Sprintf("medicine %d is not active", medicineID))
	err.Details = map[string]interface{}{"medicine_id": medicineID}
	return err
}

// NewStaleQuoteError creates a stale quote error carrying both amounts
func NewStaleQuoteError(estimate, current *big.Int) *LedgerError {
	err := NewError(KindStaleQuote, "quoted amount no longer matches the live amount")
	err.Details = map[string]interface{}{
		"estimate_wei": estimate.String(),
		"current_wei":  current.String(),
	}
	return err
}

// NewTransactionInFlightError creates a transaction in flight error
func NewTransactionInFlightError(txID string) *LedgerError {
	err := NewError(KindTransactionInFlight, "a transaction is already submitted for this workflow")
	err.Details = map[string]interface{}{"in_flight_tx": txID}
	return err
}

// NewIndeterminateError creates an indeterminate state error
func NewIndeterminateError(txHash string, cause error) *LedgerError {
	err := NewError(KindIndeterminateState, "transaction was submitted but not finalized")
	err.Details = map[string]interface{}{"tx_hash": txHash}
	err.Cause = cause
	return err
}

// NewRevertedError creates a contract revert error
func NewRevertedError(reason string, cause error) *LedgerError {
	err := NewError(KindRevertedByContract, "transaction reverted by contract")
	err.Reason = reason
	err.Cause = cause
	return err
}

// NewNetworkError creates a network unavailable error
func NewNetworkError(cause error) *LedgerError {
	err := NewError(KindNetworkUnavailable, "ledger network unavailable")
	err.Cause = cause
	return err
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *LedgerError {
	return NewError(KindUnauthorized, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(kind string, id uint64) *LedgerError {
	err := NewError(KindNotFound, fmt.Sprintf("%s %d not found", kind, id))
	err.Details = map[string]interface{}{"kind": kind, "id": id}
	return err
}

// NewInvalidInputError creates an invalid input error
func NewInvalidInputError(message string) *LedgerError {
	return NewError(KindInvalidInput, message)
}

func codeFor(kind ErrorKind) string {
	switch kind {
	case KindWalletNotConnected:
		return ErrCodeWalletNotConnected
	case KindMalformedAmount:
		return ErrCodeMalformedAmount
	case KindInvalidQuantity:
		return ErrCodeInvalidQuantity
	case KindInsufficientStock:
		return ErrCodeInsufficientStock
	case KindInactiveListing:
		return ErrCodeInactiveListing
	case KindStaleQuote:
		return ErrCodeStaleQuote
	case KindIncorrectFee:
		return ErrCodeIncorrectFee
	case KindInsufficientFunds:
		return ErrCodeInsufficientFunds
	case KindUserRejectedSigning:
		return ErrCodeUserRejected
	case KindTransactionInFlight:
		return ErrCodeTransactionInFlight
	case KindIndeterminateState:
		return ErrCodeIndeterminate
	case KindRevertedByContract:
		return ErrCodeReverted
	case KindNetworkUnavailable:
		return ErrCodeNetworkUnavailable
	case KindDegradedMetadata:
		return ErrCodeDegradedMetadata
	case KindUnauthorized:
		return ErrCodeUnauthorized
	case KindNotFound:
		return ErrCodeNotFound
	default:
		return ErrCodeInvalidInput
	}
}

// Common error codes
const (
	ErrCodeWalletNotConnected  = "WALLET_NOT_CONNECTED"
	ErrCodeMalformedAmount     = "MALFORMED_AMOUNT"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
	ErrCodeInactiveListing     = "INACTIVE_LISTING"
	ErrCodeStaleQuote          = "STALE_QUOTE"
	ErrCodeIncorrectFee        = "INCORRECT_FEE"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeUserRejected        = "USER_REJECTED_SIGNING"
	ErrCodeTransactionInFlight = "TRANSACTION_IN_FLIGHT"
	ErrCodeIndeterminate       = "INDETERMINATE_STATE"
	ErrCodeReverted            = "REVERTED_BY_CONTRACT"
	ErrCodeNetworkUnavailable  = "NETWORK_UNAVAILABLE"
	ErrCodeDegradedMetadata    = "DEGRADED_METADATA"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidInput        = "INVALID_INPUT"
)
