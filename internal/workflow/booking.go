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

// BookingRequest describes an appointment to book
type BookingRequest struct {
	DoctorID  uint64 `json:"doctor_id"`
	Date      string `json:"date"`
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

// BookingWorkflow books appointments with approved doctors
type BookingWorkflow struct {
	base
}

// NewBookingWorkflow creates a new booking workflow
func NewBookingWorkflow(deps Deps) *BookingWorkflow {
	return &BookingWorkflow{base: newBase("booking", deps)}
}

// Book books an appointment, attaching the live appointment fee
func (w *BookingWorkflow) Book(ctx context.Context, sess Session, req BookingRequest, estimate *big.Int) (*Outcome, error) {
	role, err := w.session(ctx, sess)
	if err != nil {
		return nil, err
	}
	if req.DoctorID == 0 {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError("doctor id must be set"))
	}
	date, err := requireText("appointment date", req.Date)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if err := requireRole(role, role.IsPatient(), "booking an appointment"); err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	doctor, err := w.deps.Reader.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if doctor == nil {
		return nil, w.fail(ctx, sess, types.NewNotFoundError("doctor", req.DoctorID))
	}
	if !doctor.Approved {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError(fmt.Sprintf("doctor %d is not approved", req.DoctorID)))
	}

	quote, err := w.deps.Fees.Verify(ctx, fees.Request{Kind: fees.FeeAppointment}, estimate)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnBookAppointment,
		Args:     []interface{}{req.DoctorID, req.From, req.To, date, req.Condition, req.Message},
		Value:    quote.AmountWei,
		RefIDs:   map[string]uint64{"doctor id": req.DoctorID},
	},
		ledger.Query{Kind: ledger.QueryPatientAppointments, ID: role.ID},
		ledger.Query{Kind: ledger.QueryDoctorAppointments, ID: req.DoctorID},
	)
}
