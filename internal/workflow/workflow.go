package workflow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
)

// Reader is the read surface the workflows need
type Reader interface {
	Fee(ctx context.Context, function string) (*big.Int, error)
	Medicine(ctx context.Context, id uint64) (*types.Medicine, error)
	Doctor(ctx context.Context, id uint64) (*types.Doctor, error)
	Patient(ctx context.Context, id uint64) (*types.Patient, error)
	Appointment(ctx context.Context, id uint64) (*types.Appointment, error)
	Friends(ctx context.Context, caller string) ([]types.Friend, error)
	Conversation(ctx context.Context, caller, friend string) ([]types.Message, error)
	Batch(ctx context.Context, queries ...ledger.Query) []ledger.Section
}

// RoleSource resolves the role of a connected account
type RoleSource interface {
	Resolve(ctx context.Context, address string) types.Role
}

// Session is the connected account a workflow acts for
type Session struct {
	Address string
	Wallet  interfaces.Wallet
}

func (s Session) validate() error {
	if strings.TrimSpace(s.Address) == "" || s.Wallet == nil {
		return types.NewWalletNotConnectedError()
	}
	if !types.SameAddress(s.Address, s.Wallet.Address()) {
		return types.NewUnauthorizedError("session address does not match the connected wallet")
	}
	return nil
}

// Deps holds the collaborators shared by every workflow
type Deps struct {
	Reader   Reader
	Roles    RoleSource
	Fees     *fees.Calculator
	Contract *ledger.Contract
	Receipts interfaces.ReceiptSource
	Config   *config.TransactionConfig
	Logger   *logger.Logger
	Metrics  *monitoring.MetricsCollector
}

// Outcome is the result of a finalized workflow transaction
type Outcome struct {
	TxID        string           `json:"tx_id"`
	TxHash      string           `json:"tx_hash"`
	State       txn.State        `json:"state"`
	BlockNumber uint64           `json:"block_number,omitempty"`
	AmountWei   string           `json:"amount_wei,omitempty"`
	Role        *types.Role      `json:"role,omitempty"`
	Refreshed   []ledger.Section `json:"refreshed,omitempty"`
}

// base carries what every workflow does around its transaction
type base struct {
	name string
	deps Deps
	txns *txn.Manager
}

func newBase(name string, deps Deps) base {
	return base{
		name: name,
		deps: deps,
		txns: txn.NewManager(name, deps.Contract, deps.Receipts, deps.Config, deps.Logger, deps.Metrics),
	}
}

// Close stops polling for pending receipts
func (b *base) Close() {
	b.txns.Close()
}

// InFlight returns the transaction address has in flight in this workflow, if any
func (b *base) InFlight(address string) *txn.Tx {
	return b.txns.InFlight(address)
}

// session validates the session and resolves its role. An account with a
// transaction in flight is turned away before any ledger read.
func (b *base) session(ctx context.Context, sess Session) (types.Role, error) {
	if err := sess.validate(); err != nil {
		return types.Role{}, b.fail(ctx, sess, err)
	}
	if current := b.txns.InFlight(sess.Address); current != nil {
		return types.Role{}, b.fail(ctx, sess, types.NewTransactionInFlightError(current.ID))
	}
	return b.deps.Roles.Resolve(ctx, sess.Address), nil
}

// run submits req, waits for it to finalize and refreshes the affected queries
func (b *base) run(ctx context.Context, sess Session, req txn.Request, refresh ...ledger.Query) (*Outcome, error) {
	tx := b.txns.Begin(sess.Wallet, req)
	receipt, err := b.txns.Execute(ctx, tx)

	out := &Outcome{TxID: tx.ID, TxHash: tx.Hash(), State: tx.State()}
	if v := tx.Value(); v.Sign() > 0 {
		out.AmountWei = v.String()
	}
	if err != nil {
		return out, b.fail(ctx, sess, err)
	}
	if receipt != nil {
		out.BlockNumber = receipt.BlockNumber
	}

	if len(refresh) > 0 {
		out.Refreshed = b.deps.Reader.Batch(ctx, refresh...)
	}

	b.deps.Logger.Audit(sess.Address, req.Function, b.name, true, map[string]interface{}{
		"tx_id":   tx.ID,
		"tx_hash": out.TxHash,
	})
	return out, nil
}

func (b *base) fail(ctx context.Context, sess Session, err error) error {
	kind := types.KindOf(err)
	b.deps.Metrics.RecordWorkflowError(b.name, string(kind))
	b.deps.Logger.WithContext(ctx).WithError(err).
		WithField("workflow", b.name).
		WithField("address", sess.Address).
		WithField("kind", kind).
		Warn("Workflow step failed")
	return err
}

func requireRole(role types.Role, ok bool, action string) error {
	if ok {
		return nil
	}
	return types.NewUnauthorizedError(fmt.Sprintf("%s is not allowed for role %s", action, role.Kind))
}

func requireText(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", types.NewInvalidInputError(name + " must not be empty")
	}
	return value, nil
}

func normalizeAddress(name, address string) (string, error) {
	addr, err := ethtypes.NewAddress(strings.TrimSpace(address))
	if err != nil {
		return "", types.NewInvalidInputError(fmt.Sprintf("%s is not a valid address", name))
	}
	return addr.String(), nil
}

// Set holds one instance of every workflow
type Set struct {
	Purchase     *PurchaseWorkflow
	Booking      *BookingWorkflow
	Registration *RegistrationWorkflow
	Doctor       *DoctorWorkflow
	Admin        *AdminWorkflow
	Messaging    *MessagingWorkflow
}

// NewSet creates every workflow over the same collaborators
func NewSet(deps Deps) *Set {
	return &Set{
		Purchase:     NewPurchaseWorkflow(deps),
		Booking:      NewBookingWorkflow(deps),
		Registration: NewRegistrationWorkflow(deps),
		Doctor:       NewDoctorWorkflow(deps),
		Admin:        NewAdminWorkflow(deps),
		Messaging:    NewMessagingWorkflow(deps),
	}
}

// Close stops receipt polling in every workflow
func (s *Set) Close() {
	s.Purchase.Close()
	s.Booking.Close()
	s.Registration.Close()
	s.Doctor.Close()
	s.Admin.Close()
	s.Messaging.Close()
}
