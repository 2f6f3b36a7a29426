package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
	"go.opentelemetry.io/otel/attribute"
)

var errConfirmTimeout = errors.New("confirmation timeout elapsed")

// Manager tracks the transactions of one workflow. At most one transaction
// per account is being signed, Submitted or Pending at any time.
type Manager struct {
	name           string
	contract       *ledger.Contract
	receipts       interfaces.ReceiptSource
	logger         *logger.Logger
	metrics        *monitoring.MetricsCollector
	pollInterval   time.Duration
	confirmTimeout time.Duration

	mu     sync.Mutex
	active map[string]*Tx

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a transaction manager for the named workflow
func NewManager(name string, contract *ledger.Contract, receipts interfaces.ReceiptSource, cfg *config.TransactionConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *Manager {
	poll := cfg.PollIntervalDuration()
	if poll <= 0 {
		poll = time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		name:           name,
		contract:       contract,
		receipts:       receipts,
		logger:         log,
		metrics:        metrics,
		pollInterval:   poll,
		confirmTimeout: cfg.ConfirmTimeoutDuration(),
		active:         make(map[string]*Tx),
		base:           base,
		cancel:         cancel,
	}
}

// Begin creates a transaction in the Building state
func (m *Manager) Begin(wallet interfaces.Wallet, req Request) *Tx {
	return &Tx{
		ID:       uuid.New().String(),
		Function: req.Function,
		req:      req,
		wallet:   wallet,
		state:    StateBuilding,
		done:     make(chan struct{}),
	}
}

// InFlight returns the transaction address is signing or awaiting, if any
func (m *Manager) InFlight(address string) *Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[strings.ToLower(address)]
}

// Submit validates the transaction, hands it to the wallet for signing and
// starts polling for its receipt. It returns once the wallet accepted or
// refused the request; use Wait for the final outcome. The account's slot is
// held from here on, but the tx stays Building until the wallet returns a hash.
func (m *Manager) Submit(ctx context.Context, tx *Tx) error {
	ctx, span := monitoring.StartSpan(ctx, "txn.submit",
		attribute.String("txn.workflow", m.name),
		attribute.String("txn.function", tx.Function),
		attribute.String("txn.id", tx.ID),
	)
	defer span.End()

	txReq, err := m.prepare(tx)
	if err != nil {
		monitoring.RecordError(span, err)
		return err
	}

	key := strings.ToLower(txReq.From)
	if err := m.reserve(key, tx); err != nil {
		monitoring.RecordError(span, err)
		return err
	}

	if err := m.checkBalance(ctx, tx); err != nil {
		m.finalize(ctx, key, tx, StateFailed, nil, err)
		monitoring.RecordError(span, err)
		return err
	}

	hash, err := tx.wallet.SendTransaction(ctx, txReq)
	if err != nil {
		err = Classify(err)
		m.finalize(ctx, key, tx, stateFor(err), nil, err)
		monitoring.RecordError(span, err)
		return err
	}

	tx.setHash(hash)
	span.SetAttributes(attribute.String("txn.hash", hash))
	if !tx.transition(StateBuilding, StateSubmitted) {
		m.release(key, tx)
		return fmt.Errorf("transaction %s left the building state while signing", tx.ID)
	}
	m.record(ctx, tx, StateSubmitted, nil)

	if !tx.transition(StateSubmitted, StatePending) {
		return fmt.Errorf("transaction %s left the submitted state unexpectedly", tx.ID)
	}
	m.record(ctx, tx, StatePending, nil)

	m.wg.Add(1)
	go m.await(key, tx)
	return nil
}

// Wait blocks until the transaction is final or ctx is done. Cancelling ctx
// does not cancel the transaction; the outcome is reported as
// IndeterminateState while polling continues in the background.
func (m *Manager) Wait(ctx context.Context, tx *Tx) (*types.Receipt, error) {
	if tx.State() == StateBuilding {
		return nil, types.NewInvalidInputError("transaction was not submitted")
	}
	select {
	case <-tx.Confirmed():
		state, err := tx.Outcome()
		if state == StateConfirmed {
			return tx.Receipt(), nil
		}
		return tx.Receipt(), err
	case <-ctx.Done():
		return nil, types.NewIndeterminateError(tx.Hash(), ctx.Err())
	}
}

// Execute submits the transaction and waits for its outcome
func (m *Manager) Execute(ctx context.Context, tx *Tx) (*types.Receipt, error) {
	if err := m.Submit(ctx, tx); err != nil {
		return nil, err
	}
	return m.Wait(ctx, tx)
}

// Close stops receipt polling. Transactions still pending become Indeterminate.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// prepare checks local preconditions and builds the wallet request. Nothing
// here touches the network.
func (m *Manager) prepare(tx *Tx) (*types.TxRequest, error) {
	if tx.State() != StateBuilding {
		return nil, types.NewInvalidInputError(fmt.Sprintf("transaction is %s, not building", tx.State()))
	}
	if tx.wallet == nil || strings.TrimSpace(tx.wallet.Address()) == "" {
		return nil, types.NewWalletNotConnectedError()
	}

	value := tx.Value()
	if value.Sign() < 0 {
		return nil, types.NewInvalidInputError("attached value must not be negative")
	}
	if value.Sign() > 0 && !m.contract.IsPayable(tx.Function) {
		return nil, types.NewInvalidInputError(fmt.Sprintf("%s does not accept value", tx.Function))
	}
	for name, id := range tx.req.RefIDs {
		if id == 0 {
			return nil, types.NewInvalidInputError(fmt.Sprintf("%s must be set", name))
		}
	}

	selector, err := m.contract.Selector(tx.Function)
	if err != nil {
		return nil, types.NewInvalidInputError(err.Error())
	}
	data, err := m.contract.EncodeCall(tx.Function, tx.req.Args...)
	if err != nil {
		return nil, types.NewInvalidInputError(err.Error())
	}

	return &types.TxRequest{
		From:     strings.ToLower(tx.wallet.Address()),
		To:       m.contract.Address(),
		Function: tx.Function,
		Selector: selector,
		Args:     tx.req.Args,
		Value:    value,
		Data:     data,
	}, nil
}

// reserve claims the account's slot for tx. A reserved tx cannot be
// abandoned or submitted again.
func (m *Manager) reserve(key string, tx *Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.active[key]; ok && current != tx {
		return types.NewTransactionInFlightError(current.ID)
	}
	if !tx.reserve() {
		return types.NewInvalidInputError(fmt.Sprintf("transaction is %s, not building", tx.State()))
	}
	m.active[key] = tx
	return nil
}

func (m *Manager) release(key string, tx *Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[key] == tx {
		delete(m.active, key)
	}
}

// checkBalance rejects the transaction when the wallet reports a balance
// below the attached value. Wallets that cannot report a balance skip it.
func (m *Manager) checkBalance(ctx context.Context, tx *Tx) error {
	value := tx.Value()
	reporter, ok := tx.wallet.(interfaces.BalanceReporter)
	if !ok || value.Sign() == 0 {
		return nil
	}
	balance, err := reporter.Balance(ctx, tx.wallet.Address())
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("tx_id", tx.ID).Warn("Balance pre-check skipped")
		return nil
	}
	if balance.Cmp(value) < 0 {
		e := types.NewError(types.KindInsufficientFunds, "wallet balance is below the attached value")
		e.Details = map[string]interface{}{
			"balance_wei":  balance.String(),
			"required_wei": value.String(),
		}
		return e
	}
	return nil
}

// await polls for the receipt until the transaction is final
func (m *Manager) await(key string, tx *Tx) {
	defer m.wg.Done()

	ctx := m.base
	var deadline <-chan time.Time
	if m.confirmTimeout > 0 {
		timer := time.NewTimer(m.confirmTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	hash := tx.Hash()
	for {
		receipt, err := m.receipts.TransactionReceipt(ctx, hash)
		switch {
		case err != nil && ctx.Err() == nil:
			m.logger.WithContext(ctx).WithError(err).WithField("tx_hash", hash).Debug("Receipt poll failed")
		case receipt != nil && receipt.Success:
			m.finalize(ctx, key, tx, StateConfirmed, receipt, nil)
			return
		case receipt != nil:
			m.finalize(ctx, key, tx, StateFailed, receipt, Classify(types.NewRevertedError(receipt.RevertReason, nil)))
			return
		}

		select {
		case <-ticker.C:
		case <-deadline:
			m.finalize(ctx, key, tx, StateIndeterminate, nil, types.NewIndeterminateError(hash, errConfirmTimeout))
			return
		case <-ctx.Done():
			m.finalize(context.Background(), key, tx, StateIndeterminate, nil, types.NewIndeterminateError(hash, ctx.Err()))
			return
		}
	}
}

func (m *Manager) finalize(ctx context.Context, key string, tx *Tx, state State, receipt *types.Receipt, err error) {
	if !tx.finish(state, receipt, err) {
		return
	}

	m.release(key, tx)

	m.record(ctx, tx, state, err)
	m.metrics.RecordTransactionFinalized(tx.Function, string(state), tx.elapsed())
}

func (m *Manager) record(ctx context.Context, tx *Tx, state State, err error) {
	m.logger.Transaction(ctx, tx.ID, tx.Function, string(state), tx.Hash(), err)
	m.metrics.RecordTransactionState(tx.Function, string(state))
}
