package txn

import (
	"math/big"
	"sync"
	"time"

	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/types"
)

// State is the lifecycle state of a tracked transaction
type State string

const (
	StateBuilding      State = "building"
	StateSubmitted     State = "submitted"
	StatePending       State = "pending"
	StateConfirmed     State = "confirmed"
	StateFailed        State = "failed"
	StateRejected      State = "rejected"
	StateIndeterminate State = "indeterminate"
	StateAbandoned     State = "abandoned"
)

// Final reports whether no further transition can happen
func (s State) Final() bool {
	switch s {
	case StateConfirmed, StateFailed, StateRejected, StateIndeterminate, StateAbandoned:
		return true
	}
	return false
}

// InFlight reports whether the transaction blocks another submission
func (s State) InFlight() bool {
	return s == StateSubmitted || s == StatePending
}

// Request describes a state-changing call before it is handed to a wallet
type Request struct {
	Function string
	Args     []interface{}
	Value    *big.Int
	// RefIDs names record ids the call references; each must be non-zero
	RefIDs map[string]uint64
}

// Tx is one tracked transaction. Only the Manager moves it between states.
type Tx struct {
	ID       string
	Function string

	req    Request
	wallet interfaces.Wallet

	mu          sync.RWMutex
	state       State
	reserved    bool
	hash        string
	receipt     *types.Receipt
	err         error
	submittedAt time.Time
	done        chan struct{}
}

// State returns the current state
func (t *Tx) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Hash returns the transaction hash once the wallet accepted the request
func (t *Tx) Hash() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hash
}

// Receipt returns the finalized receipt, if any
func (t *Tx) Receipt() *types.Receipt {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.receipt
}

// Value returns the amount attached to the call
func (t *Tx) Value() *big.Int {
	if t.req.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(t.req.Value)
}

// Confirmed is closed when the transaction reaches a final state
func (t *Tx) Confirmed() <-chan struct{} {
	return t.done
}

// Outcome returns the current state and the error that ended it, if any
func (t *Tx) Outcome() (State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.err
}

// Abandon discards a transaction that was never submitted
func (t *Tx) Abandon() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateBuilding || t.reserved {
		return types.NewInvalidInputError("only a transaction that was not submitted can be abandoned")
	}
	t.state = StateAbandoned
	close(t.done)
	return nil
}

// reserve marks a Building tx as handed to the manager, once
func (t *Tx) reserve() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateBuilding || t.reserved {
		return false
	}
	t.reserved = true
	return true
}

// transition moves to a non-final state, failing when the tx is already final
func (t *Tx) transition(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	if to == StateSubmitted {
		t.submittedAt = time.Now()
	}
	return true
}

func (t *Tx) setHash(hash string) {
	t.mu.Lock()
	t.hash = hash
	t.mu.Unlock()
}

// finish moves to a final state exactly once
func (t *Tx) finish(state State, receipt *types.Receipt, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Final() {
		return false
	}
	t.state = state
	t.receipt = receipt
	t.err = err
	close(t.done)
	return true
}

func (t *Tx) elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.submittedAt.IsZero() {
		return 0
	}
	return time.Since(t.submittedAt)
}
