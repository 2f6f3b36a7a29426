package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerError_KindSurvivesWrapping(t *testing.T) {
	base := NewInsufficientStockError(5, 3)
	wrapped := fmt.Errorf("purchase failed: %w", base)

	assert.Equal(t, KindInsufficientStock, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindInsufficientStock))
	assert.False(t, IsKind(nil, KindInsufficientStock))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.True(t, errors.Is(wrapped, NewError(KindInsufficientStock, "other message")))
}

func TestLedgerError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetworkError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLedgerError_UserMessage(t *testing.T) {
	reverted := NewRevertedError("Only admin", nil)
	assert.Equal(t, "The contract rejected the transaction: Only admin", reverted.UserMessage())
	assert.Equal(t, "The contract rejected the transaction.", NewRevertedError("", nil).UserMessage())

	// kinds without a fixed sentence fall back to the message
	assert.Equal(t, "date is required", NewInvalidInputError("date is required").UserMessage())
}

func TestLedgerError_LocalAndFatal(t *testing.T) {
	assert.True(t, NewWalletNotConnectedError().Local())
	assert.True(t, NewStaleQuoteError(big.NewInt(1), big.NewInt(2)).Local())
	assert.False(t, NewNetworkError(nil).Local())
	assert.False(t, NewRevertedError("x", nil).Local())

	assert.True(t, NewUnauthorizedError("no").Fatal())
	assert.False(t, NewError(KindDegradedMetadata, "missing").Fatal())
}

func TestNewStaleQuoteError_Details(t *testing.T) {
	err := NewStaleQuoteError(big.NewInt(2700), big.NewInt(3000))
	assert.Equal(t, "2700", err.Details["estimate_wei"])
	assert.Equal(t, "3000", err.Details["current_wei"])
	assert.NotEmpty(t, err.Code)
}
