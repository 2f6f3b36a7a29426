package workflow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/medrex/medledger/internal/amount"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/types"
)

// NewMedicine describes a listing added by the administrator. Price is a
// decimal amount in the native currency.
type NewMedicine struct {
	MetadataRef string `json:"metadata_ref"`
	Price       string `json:"price"`
	Quantity    uint64 `json:"quantity"`
	Discount    uint64 `json:"discount"`
	Location    string `json:"location"`
}

// AdminWorkflow holds the actions reserved for the contract administrator
type AdminWorkflow struct {
	base
}

// NewAdminWorkflow creates a new admin workflow
func NewAdminWorkflow(deps Deps) *AdminWorkflow {
	return &AdminWorkflow{base: newBase("admin", deps)}
}

func (w *AdminWorkflow) admin(ctx context.Context, sess Session, action string) error {
	role, err := w.session(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireRole(role, role.IsAdmin(), action); err != nil {
		return w.fail(ctx, sess, err)
	}
	return nil
}

func (w *AdminWorkflow) medicine(ctx context.Context, sess Session, id uint64) error {
	if id == 0 {
		return w.fail(ctx, sess, types.NewInvalidInputError("medicine id must be set"))
	}
	m, err := w.deps.Reader.Medicine(ctx, id)
	if err != nil {
		return w.fail(ctx, sess, err)
	}
	if m == nil {
		return w.fail(ctx, sess, types.NewNotFoundError("medicine", id))
	}
	return nil
}

func (w *AdminWorkflow) price(ctx context.Context, sess Session, decimal string) (*big.Int, error) {
	wei, err := amount.ToSmallestUnit(decimal)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	return wei, nil
}

func checkDiscount(discount uint64) error {
	if discount > 100 {
		return types.NewInvalidInputError(fmt.Sprintf("discount %d must be between 0 and 100", discount))
	}
	return nil
}

// ApproveDoctor approves a registered doctor. Both doctor lists are
// refetched so the approval shows without a full reload.
func (w *AdminWorkflow) ApproveDoctor(ctx context.Context, sess Session, doctorID uint64) (*Outcome, error) {
	if err := w.admin(ctx, sess, "approving doctors"); err != nil {
		return nil, err
	}
	if doctorID == 0 {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError("doctor id must be set"))
	}
	d, err := w.deps.Reader.Doctor(ctx, doctorID)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if d == nil {
		return nil, w.fail(ctx, sess, types.NewNotFoundError("doctor", doctorID))
	}
	if d.Approved {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError(fmt.Sprintf("doctor %d is already approved", doctorID)))
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnApproveDoctor,
		Args:     []interface{}{doctorID},
		RefIDs:   map[string]uint64{"doctor id": doctorID},
	},
		ledger.Query{Kind: ledger.QueryDoctors},
		ledger.Query{Kind: ledger.QueryApprovedDoctors},
	)
}

// AddMedicine lists a new medicine
func (w *AdminWorkflow) AddMedicine(ctx context.Context, sess Session, m NewMedicine) (*Outcome, error) {
	if err := w.admin(ctx, sess, "adding medicine"); err != nil {
		return nil, err
	}
	ref, err := requireText("metadata reference", m.MetadataRef)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if err := checkDiscount(m.Discount); err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	price, err := w.price(ctx, sess, m.Price)
	if err != nil {
		return nil, err
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnAddMedicine,
		Args:     []interface{}{ref, price, m.Quantity, m.Discount, m.Location},
	}, ledger.Query{Kind: ledger.QueryMedicines})
}

// UpdateMedicinePrice sets the undiscounted unit price from a decimal amount
func (w *AdminWorkflow) UpdateMedicinePrice(ctx context.Context, sess Session, medicineID uint64, decimal string) (*Outcome, error) {
	if err := w.admin(ctx, sess, "updating medicine price"); err != nil {
		return nil, err
	}
	price, err := w.price(ctx, sess, decimal)
	if err != nil {
		return nil, err
	}
	if err := w.medicine(ctx, sess, medicineID); err != nil {
		return nil, err
	}
	return w.updateMedicine(ctx, sess, ledger.FnUpdateMedicinePrice, medicineID, price)
}

// UpdateMedicineQuantity sets the stock of a medicine
func (w *AdminWorkflow) UpdateMedicineQuantity(ctx context.Context, sess Session, medicineID, quantity uint64) (*Outcome, error) {
	if err := w.admin(ctx, sess, "updating medicine stock"); err != nil {
		return nil, err
	}
	if err := w.medicine(ctx, sess, medicineID); err != nil {
		return nil, err
	}
	return w.updateMedicine(ctx, sess, ledger.FnUpdateMedicineQuantity, medicineID, quantity)
}

// UpdateMedicineDiscount sets the discount percentage of a medicine
func (w *AdminWorkflow) UpdateMedicineDiscount(ctx context.Context, sess Session, medicineID, discount uint64) (*Outcome, error) {
	if err := w.admin(ctx, sess, "updating medicine discount"); err != nil {
		return nil, err
	}
	if err := checkDiscount(discount); err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if err := w.medicine(ctx, sess, medicineID); err != nil {
		return nil, err
	}
	return w.updateMedicine(ctx, sess, ledger.FnUpdateMedicineDiscount, medicineID, discount)
}

// SetMedicineActive lists or delists a medicine
func (w *AdminWorkflow) SetMedicineActive(ctx context.Context, sess Session, medicineID uint64, active bool) (*Outcome, error) {
	if err := w.admin(ctx, sess, "changing medicine availability"); err != nil {
		return nil, err
	}
	if err := w.medicine(ctx, sess, medicineID); err != nil {
		return nil, err
	}
	return w.updateMedicine(ctx, sess, ledger.FnUpdateMedicineActive, medicineID, active)
}

func (w *AdminWorkflow) updateMedicine(ctx context.Context, sess Session, function string, medicineID uint64, value interface{}) (*Outcome, error) {
	return w.run(ctx, sess, txn.Request{
		Function: function,
		Args:     []interface{}{medicineID, value},
		RefIDs:   map[string]uint64{"medicine id": medicineID},
	}, ledger.Query{Kind: ledger.QueryMedicines})
}

// UpdateRegistrationFee sets the registration fee of patients or doctors
func (w *AdminWorkflow) UpdateRegistrationFee(ctx context.Context, sess Session, role types.RoleKind, decimal string) (*Outcome, error) {
	var function string
	switch role {
	case types.RolePatient:
		function = ledger.FnUpdateRegistrationPatientFee
	case types.RoleDoctor:
		function = ledger.FnUpdateRegistrationDoctorFee
	default:
		return nil, types.NewInvalidInputError(fmt.Sprintf("role %s has no registration fee", role))
	}
	return w.updateFee(ctx, sess, function, decimal)
}

// UpdateAppointmentFee sets the appointment fee
func (w *AdminWorkflow) UpdateAppointmentFee(ctx context.Context, sess Session, decimal string) (*Outcome, error) {
	return w.updateFee(ctx, sess, ledger.FnUpdateAppointmentFee, decimal)
}

func (w *AdminWorkflow) updateFee(ctx context.Context, sess Session, function, decimal string) (*Outcome, error) {
	if err := w.admin(ctx, sess, "updating fees"); err != nil {
		return nil, err
	}
	fee, err := w.price(ctx, sess, decimal)
	if err != nil {
		return nil, err
	}
	return w.run(ctx, sess, txn.Request{
		Function: function,
		Args:     []interface{}{fee},
	}, ledger.Query{Kind: ledger.QueryContractInfo})
}

// UpdateAdminAddress hands the administrator role to another account
func (w *AdminWorkflow) UpdateAdminAddress(ctx context.Context, sess Session, address string) (*Outcome, error) {
	if err := w.admin(ctx, sess, "changing the administrator"); err != nil {
		return nil, err
	}
	addr, err := normalizeAddress("new admin", address)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnUpdateAdminAddress,
		Args:     []interface{}{addr},
	}, ledger.Query{Kind: ledger.QueryContractInfo})
}
