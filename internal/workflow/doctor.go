package workflow

import (
	"context"
	"fmt"

	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/types"
)

// DoctorWorkflow holds the actions of an approved doctor
type DoctorWorkflow struct {
	base
}

// NewDoctorWorkflow creates a new doctor workflow
func NewDoctorWorkflow(deps Deps) *DoctorWorkflow {
	return &DoctorWorkflow{base: newBase("doctor", deps)}
}

func (w *DoctorWorkflow) doctor(ctx context.Context, sess Session, action string) (types.Role, error) {
	role, err := w.session(ctx, sess)
	if err != nil {
		return role, err
	}
	if err := requireRole(role, role.IsApprovedDoctor(), action); err != nil {
		return role, w.fail(ctx, sess, err)
	}
	return role, nil
}

func (w *DoctorWorkflow) patient(ctx context.Context, sess Session, patientID uint64) error {
	if patientID == 0 {
		return w.fail(ctx, sess, types.NewInvalidInputError("patient id must be set"))
	}
	p, err := w.deps.Reader.Patient(ctx, patientID)
	if err != nil {
		return w.fail(ctx, sess, err)
	}
	if p == nil {
		return w.fail(ctx, sess, types.NewNotFoundError("patient", patientID))
	}
	return nil
}

// Prescribe prescribes a medicine to a patient
func (w *DoctorWorkflow) Prescribe(ctx context.Context, sess Session, medicineID, patientID uint64, date string) (*Outcome, error) {
	if _, err := w.doctor(ctx, sess, "prescribing"); err != nil {
		return nil, err
	}
	date, err := requireText("prescription date", date)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if medicineID == 0 {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError("medicine id must be set"))
	}
	m, err := w.deps.Reader.Medicine(ctx, medicineID)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if m == nil {
		return nil, w.fail(ctx, sess, types.NewNotFoundError("medicine", medicineID))
	}
	if err := w.patient(ctx, sess, patientID); err != nil {
		return nil, err
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnPrescribeMedicine,
		Args:     []interface{}{medicineID, patientID, date},
		RefIDs:   map[string]uint64{"medicine id": medicineID, "patient id": patientID},
	}, ledger.Query{Kind: ledger.QueryPatientPrescriptions, ID: patientID})
}

// UpdateMedicalHistory appends an entry to a patient's medical history
func (w *DoctorWorkflow) UpdateMedicalHistory(ctx context.Context, sess Session, patientID uint64, entry string) (*Outcome, error) {
	if _, err := w.doctor(ctx, sess, "updating medical history"); err != nil {
		return nil, err
	}
	entry, err := requireText("medical history entry", entry)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if err := w.patient(ctx, sess, patientID); err != nil {
		return nil, err
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnUpdatePatientMedicalHistory,
		Args:     []interface{}{patientID, entry},
		RefIDs:   map[string]uint64{"patient id": patientID},
	}, ledger.Query{Kind: ledger.QueryMedicalHistory, ID: patientID})
}

// CompleteAppointment closes an open appointment held by the session doctor
func (w *DoctorWorkflow) CompleteAppointment(ctx context.Context, sess Session, appointmentID uint64) (*Outcome, error) {
	role, err := w.doctor(ctx, sess, "completing an appointment")
	if err != nil {
		return nil, err
	}
	if appointmentID == 0 {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError("appointment id must be set"))
	}

	a, err := w.deps.Reader.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if a == nil {
		return nil, w.fail(ctx, sess, types.NewNotFoundError("appointment", appointmentID))
	}
	if a.DoctorID != role.ID {
		return nil, w.fail(ctx, sess, types.NewUnauthorizedError("appointment belongs to another doctor"))
	}
	if !a.Open {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError(fmt.Sprintf("appointment %d is already completed", appointmentID)))
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnCompleteAppointment,
		Args:     []interface{}{appointmentID},
		RefIDs:   map[string]uint64{"appointment id": appointmentID},
	},
		ledger.Query{Kind: ledger.QueryDoctorAppointments, ID: role.ID},
		ledger.Query{Kind: ledger.QueryPatientAppointments, ID: a.PatientID},
	)
}
