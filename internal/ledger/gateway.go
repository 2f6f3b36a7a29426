package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
	"golang.org/x/sync/errgroup"
)

// QueryKind names a read query the gateway can issue and a workflow can refresh
type QueryKind string

const (
	QueryMedicines            QueryKind = "medicines"
	QueryDoctors              QueryKind = "doctors"
	QueryApprovedDoctors      QueryKind = "approved_doctors"
	QueryPatients             QueryKind = "patients"
	QueryAppointments         QueryKind = "appointments"
	QueryPatientAppointments  QueryKind = "patient_appointments"
	QueryDoctorAppointments   QueryKind = "doctor_appointments"
	QueryPatientPrescriptions QueryKind = "patient_prescriptions"
	QueryPatientOrders        QueryKind = "patient_orders"
	QueryMedicalHistory       QueryKind = "medical_history"
	QueryFriends              QueryKind = "friends"
	QueryMessages             QueryKind = "messages"
	QueryContractInfo         QueryKind = "contract_info"
)

// Query is a read query with its scope. ID scopes patient and doctor
// queries; Caller and Peer scope the messaging queries.
type Query struct {
	Kind   QueryKind `json:"kind"`
	ID     uint64    `json:"id,omitempty"`
	Caller string    `json:"caller,omitempty"`
	Peer   string    `json:"peer,omitempty"`
}

func (q Query) String() string {
	switch {
	case q.ID != 0:
		return fmt.Sprintf("%s/%d", q.Kind, q.ID)
	case q.Peer != "":
		return fmt.Sprintf("%s/%s", q.Kind, q.Peer)
	default:
		return string(q.Kind)
	}
}

// ReadGateway issues view calls against the contract and normalizes the results
type ReadGateway struct {
	caller  interfaces.LedgerCaller
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewReadGateway creates a new read gateway
func NewReadGateway(caller interfaces.LedgerCaller, log *logger.Logger, metrics *monitoring.MetricsCollector) *ReadGateway {
	return &ReadGateway{
		caller:  caller,
		logger:  log,
		metrics: metrics,
	}
}

func (g *ReadGateway) call(ctx context.Context, from, function string, args ...interface{}) (json.RawMessage, error) {
	ctx, span := monitoring.StartLedgerSpan(ctx, "read", function)
	defer span.End()

	var raw json.RawMessage
	var err error
	if from == "" {
		raw, err = g.caller.Call(ctx, function, args...)
	} else {
		raw, err = g.caller.CallAs(ctx, from, function, args...)
	}
	monitoring.RecordError(span, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", function, err)
	}
	return raw, nil
}

func readList[T any](ctx context.Context, g *ReadGateway, function string, convert func(*row) (T, error), args ...interface{}) ([]T, error) {
	return readListAs(ctx, g, "", function, convert, args...)
}

func readListAs[T any](ctx context.Context, g *ReadGateway, from, function string, convert func(*row) (T, error), args ...interface{}) ([]T, error) {
	raw, err := g.call(ctx, from, function, args...)
	if err != nil {
		return nil, err
	}
	records, skipped, err := decodeRows(raw, convert)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", function, err)
	}
	if skipped > 0 {
		g.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"function": function,
			"skipped":  skipped,
		}).Warn("Skipped malformed ledger rows")
	}
	return records, nil
}

// Medicines returns every medicine listing
func (g *ReadGateway) Medicines(ctx context.Context) ([]types.Medicine, error) {
	return readList(ctx, g, FnGetAllMedicines, medicineFromRow)
}

// Doctors returns every registered doctor
func (g *ReadGateway) Doctors(ctx context.Context) ([]types.Doctor, error) {
	return readList(ctx, g, FnGetAllDoctors, doctorFromRow)
}

// ApprovedDoctors returns doctors approved by the administrator
func (g *ReadGateway) ApprovedDoctors(ctx context.Context) ([]types.Doctor, error) {
	return readList(ctx, g, FnGetAllApprovedDoctors, doctorFromRow)
}

// Patients returns every registered patient
func (g *ReadGateway) Patients(ctx context.Context) ([]types.Patient, error) {
	return readList(ctx, g, FnGetAllPatients, patientFromRow)
}

// Appointments returns every appointment
func (g *ReadGateway) Appointments(ctx context.Context) ([]types.Appointment, error) {
	return readList(ctx, g, FnGetAllAppointments, appointmentFromRow)
}

// PatientAppointments returns the appointments booked by a patient
func (g *ReadGateway) PatientAppointments(ctx context.Context, patientID uint64) ([]types.Appointment, error) {
	return readList(ctx, g, FnGetPatientAppointments, appointmentFromRow, patientID)
}

// DoctorAppointments returns the appointments booked with a doctor
func (g *ReadGateway) DoctorAppointments(ctx context.Context, doctorID uint64) ([]types.Appointment, error) {
	return readList(ctx, g, FnGetDoctorAppointments, appointmentFromRow, doctorID)
}

// PatientPrescriptions returns the prescriptions issued to a patient
func (g *ReadGateway) PatientPrescriptions(ctx context.Context, patientID uint64) ([]types.Prescription, error) {
	return readList(ctx, g, FnGetPatientPrescriptions, prescriptionFromRow, patientID)
}

// PatientOrders returns the medicine orders placed by a patient
func (g *ReadGateway) PatientOrders(ctx context.Context, patientID uint64) ([]types.Order, error) {
	return readList(ctx, g, FnGetPatientOrders, orderFromRow, patientID)
}

// Friends returns the friend list of the calling account
func (g *ReadGateway) Friends(ctx context.Context, caller string) ([]types.Friend, error) {
	return readListAs(ctx, g, caller, FnGetMyFriendList, friendFromRow)
}

// Conversation returns the messages exchanged between the caller and a friend
func (g *ReadGateway) Conversation(ctx context.Context, caller, friend string) ([]types.Message, error) {
	return readListAs(ctx, g, caller, FnReadMessage, messageFromRow, friend)
}

// Medicine returns a single listing, or nil when it does not exist
func (g *ReadGateway) Medicine(ctx context.Context, id uint64) (*types.Medicine, error) {
	if id == 0 {
		return nil, nil
	}
	all, err := g.Medicines(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Appointment returns a single appointment, or nil when it does not exist
func (g *ReadGateway) Appointment(ctx context.Context, id uint64) (*types.Appointment, error) {
	if id == 0 {
		return nil, nil
	}
	all, err := g.Appointments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Doctor returns a single doctor, or nil when it does not exist
func (g *ReadGateway) Doctor(ctx context.Context, id uint64) (*types.Doctor, error) {
	if id == 0 {
		return nil, nil
	}
	raw, err := g.call(ctx, "", FnGetDoctorDetails, id)
	if err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, err
	}
	d, err := decodeSingle(raw, doctorFromRow)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FnGetDoctorDetails, err)
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

// Patient returns a single patient, or nil when it does not exist
func (g *ReadGateway) Patient(ctx context.Context, id uint64) (*types.Patient, error) {
	if id == 0 {
		return nil, nil
	}
	raw, err := g.call(ctx, "", FnGetPatientDetails, id)
	if err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, err
	}
	p, err := decodeSingle(raw, patientFromRow)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FnGetPatientDetails, err)
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

// MedicalHistory returns the ordered medical history of a patient
func (g *ReadGateway) MedicalHistory(ctx context.Context, patientID uint64) ([]string, error) {
	p, err := g.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	return p.MedicalHistory, nil
}

// DoctorID returns the doctor id registered for an address, zero if none
func (g *ReadGateway) DoctorID(ctx context.Context, address string) (uint64, error) {
	raw, err := g.call(ctx, "", FnGetDoctorID, address)
	if err != nil {
		return 0, err
	}
	return decodeUint(raw)
}

// PatientID returns the patient id registered for an address, zero if none
func (g *ReadGateway) PatientID(ctx context.Context, address string) (uint64, error) {
	raw, err := g.call(ctx, "", FnGetPatientID, address)
	if err != nil {
		return 0, err
	}
	return decodeUint(raw)
}

// UserExists reports whether an address holds any registration
func (g *ReadGateway) UserExists(ctx context.Context, address string) (bool, error) {
	raw, err := g.call(ctx, "", FnCheckUserExists, address)
	if err != nil {
		return false, err
	}
	return decodeBool(raw)
}

// UserRole returns the raw role tag the contract holds for an address
func (g *ReadGateway) UserRole(ctx context.Context, address string) (string, error) {
	raw, err := g.call(ctx, "", FnGetUserRole, address)
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

// Admin returns the administrator address
func (g *ReadGateway) Admin(ctx context.Context) (string, error) {
	raw, err := g.call(ctx, "", FnAdmin)
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

// ContractInfo reads the administrator, fees and counters concurrently
func (g *ReadGateway) ContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	info := &types.ContractInfo{}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		admin, err := g.Admin(egCtx)
		info.Admin = admin
		return err
	})

	bigReads := map[string]**big.Int{
		FnRegistrationDoctorFee:  &info.RegistrationDoctorFeeWei,
		FnRegistrationPatientFee: &info.RegistrationPatientFeeWei,
		FnAppointmentFee:         &info.AppointmentFeeWei,
	}
	for fn, dst := range bigReads {
		fn, dst := fn, dst
		eg.Go(func() error {
			raw, err := g.call(egCtx, "", fn)
			if err != nil {
				return err
			}
			v, err := decodeBigInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", fn, err)
			}
			*dst = v
			return nil
		})
	}

	countReads := map[string]*uint64{
		FnDoctorCount:       &info.DoctorCount,
		FnPatientCount:      &info.PatientCount,
		FnMedicineCount:     &info.MedicineCount,
		FnAppointmentCount:  &info.AppointmentCount,
		FnPrescriptionCount: &info.PrescriptionCount,
	}
	for fn, dst := range countReads {
		fn, dst := fn, dst
		eg.Go(func() error {
			raw, err := g.call(egCtx, "", fn)
			if err != nil {
				return err
			}
			v, err := decodeUint(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", fn, err)
			}
			*dst = v
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}

// Fee reads a single fee getter
func (g *ReadGateway) Fee(ctx context.Context, function string) (*big.Int, error) {
	switch function {
	case FnRegistrationDoctorFee, FnRegistrationPatientFee, FnAppointmentFee:
	default:
		return nil, fmt.Errorf("%s is not a fee getter", function)
	}
	raw, err := g.call(ctx, "", function)
	if err != nil {
		return nil, err
	}
	return decodeBigInt(raw)
}

// ReadAll runs a list query and returns its typed records
func (g *ReadGateway) ReadAll(ctx context.Context, q Query) (interface{}, error) {
	switch q.Kind {
	case QueryMedicines:
		return g.Medicines(ctx)
	case QueryDoctors:
		return g.Doctors(ctx)
	case QueryApprovedDoctors:
		return g.ApprovedDoctors(ctx)
	case QueryPatients:
		return g.Patients(ctx)
	case QueryAppointments:
		return g.Appointments(ctx)
	case QueryPatientAppointments:
		return g.PatientAppointments(ctx, q.ID)
	case QueryDoctorAppointments:
		return g.DoctorAppointments(ctx, q.ID)
	case QueryPatientPrescriptions:
		return g.PatientPrescriptions(ctx, q.ID)
	case QueryPatientOrders:
		return g.PatientOrders(ctx, q.ID)
	case QueryMedicalHistory:
		return g.MedicalHistory(ctx, q.ID)
	case QueryFriends:
		return g.Friends(ctx, q.Caller)
	case QueryMessages:
		return g.Conversation(ctx, q.Caller, q.Peer)
	case QueryContractInfo:
		return g.ContractInfo(ctx)
	default:
		return nil, types.NewInvalidInputError(fmt.Sprintf("unknown query kind %q", q.Kind))
	}
}

// ReadOne returns a single record of the given collection, or nil when it does not exist
func (g *ReadGateway) ReadOne(ctx context.Context, kind QueryKind, id uint64) (interface{}, error) {
	var (
		rec interface{}
		err error
	)
	switch kind {
	case QueryMedicines:
		var m *types.Medicine
		m, err = g.Medicine(ctx, id)
		if m != nil {
			rec = m
		}
	case QueryDoctors, QueryApprovedDoctors:
		var d *types.Doctor
		d, err = g.Doctor(ctx, id)
		if d != nil && (kind == QueryDoctors || d.Approved) {
			rec = d
		}
	case QueryPatients:
		var p *types.Patient
		p, err = g.Patient(ctx, id)
		if p != nil {
			rec = p
		}
	case QueryAppointments:
		var a *types.Appointment
		a, err = g.Appointment(ctx, id)
		if a != nil {
			rec = a
		}
	default:
		return nil, types.NewInvalidInputError(fmt.Sprintf("query kind %q has no single-record form", kind))
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// isRevert reports whether a view call was rejected by the contract itself
func isRevert(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == 3 || strings.Contains(strings.ToLower(rpcErr.Message), "revert")
}
