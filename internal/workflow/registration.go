package workflow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/types"
)

// RegistrationWorkflow registers unregistered accounts as patients or doctors
type RegistrationWorkflow struct {
	base
}

// NewRegistrationWorkflow creates a new registration workflow
func NewRegistrationWorkflow(deps Deps) *RegistrationWorkflow {
	return &RegistrationWorkflow{base: newBase("registration", deps)}
}

// RegisterPatient registers the session account as a patient
func (w *RegistrationWorkflow) RegisterPatient(ctx context.Context, sess Session, metadataRef string, estimate *big.Int) (*Outcome, error) {
	return w.register(ctx, sess, fees.FeePatientRegistration, ledger.FnRegisterPatient, ledger.QueryPatients, metadataRef, estimate)
}

// RegisterDoctor registers the session account as a doctor awaiting approval
func (w *RegistrationWorkflow) RegisterDoctor(ctx context.Context, sess Session, metadataRef string, estimate *big.Int) (*Outcome, error) {
	return w.register(ctx, sess, fees.FeeDoctorRegistration, ledger.FnRegisterDoctor, ledger.QueryDoctors, metadataRef, estimate)
}

func (w *RegistrationWorkflow) register(ctx context.Context, sess Session, kind fees.Kind, function string, list ledger.QueryKind, metadataRef string, estimate *big.Int) (*Outcome, error) {
	role, err := w.session(ctx, sess)
	if err != nil {
		return nil, err
	}
	ref, err := requireText("metadata reference", metadataRef)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if role.Kind != types.RoleNone {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError(fmt.Sprintf("account is already registered as %s", role.Kind)))
	}

	quote, err := w.deps.Fees.Verify(ctx, fees.Request{Kind: kind}, estimate)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	out, err := w.run(ctx, sess, txn.Request{
		Function: function,
		Args:     []interface{}{ref},
		Value:    quote.AmountWei,
	}, ledger.Query{Kind: list})
	if err != nil {
		return out, err
	}

	resolved := w.deps.Roles.Resolve(ctx, sess.Address)
	out.Role = &resolved
	return out, nil
}
