package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/medrex/medledger/internal/amount"
	"github.com/medrex/medledger/pkg/types"
)

// statusFor maps an error kind onto an HTTP status
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindWalletNotConnected:
		return http.StatusUnauthorized
	case types.KindUnauthorized:
		return http.StatusForbidden
	case types.KindInvalidInput, types.KindMalformedAmount, types.KindInvalidQuantity:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindInsufficientStock, types.KindInactiveListing, types.KindStaleQuote,
		types.KindTransactionInFlight, types.KindIncorrectFee:
		return http.StatusConflict
	case types.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case types.KindUserRejectedSigning, types.KindRevertedByContract:
		return http.StatusUnprocessableEntity
	case types.KindIndeterminateState:
		return http.StatusAccepted
	case types.KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error   string                 `json:"error"`
	Kind    types.ErrorKind        `json:"kind,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Status  int                    `json:"status"`
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response derived from err
func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var le *types.LedgerError
	if !errors.As(err, &le) {
		le = types.NewError("", "internal error")
		le.Cause = err
	}

	status := statusFor(le.Kind)
	entry := s.logger.WithContext(r.Context()).WithError(err).
		WithField("path", r.URL.Path).
		WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	s.writeJSONResponse(w, status, errorResponse{
		Error:   le.UserMessage(),
		Kind:    le.Kind,
		Code:    le.Code,
		Reason:  le.Reason,
		Details: le.Details,
		Status:  status,
	})
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, types.NewInvalidInputError(name + " must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewInvalidInputError(name + " must be an integer")
	}
	return n, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewInvalidInputError("invalid request body: " + err.Error())
	}
	return nil
}

// parseEstimate reads the amount the user was shown, given either in smallest
// units or as a decimal. Both empty means no estimate.
func parseEstimate(wei, decimal string) (*big.Int, error) {
	wei = strings.TrimSpace(wei)
	if wei != "" {
		n, ok := new(big.Int).SetString(wei, 10)
		if !ok || n.Sign() < 0 {
			return nil, types.NewMalformedAmountError(wei, "estimate_wei must be a non-negative integer")
		}
		return n, nil
	}
	if strings.TrimSpace(decimal) != "" {
		return amount.ToSmallestUnit(decimal)
	}
	return nil, nil
}
