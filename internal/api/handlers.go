package api

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/medrex/medledger/internal/amount"
	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/pkg/types"
)

// contractView exposes the fee amounts that ContractInfo keeps as big integers
type contractView struct {
	*types.ContractInfo
	RegistrationDoctorFeeWei  string `json:"registration_doctor_fee_wei"`
	RegistrationPatientFeeWei string `json:"registration_patient_fee_wei"`
	AppointmentFeeWei         string `json:"appointment_fee_wei"`
	RegistrationDoctorFee     string `json:"registration_doctor_fee"`
	RegistrationPatientFee    string `json:"registration_patient_fee"`
	AppointmentFee            string `json:"appointment_fee"`
}

func newContractView(info *types.ContractInfo) *contractView {
	if info == nil {
		return nil
	}
	return &contractView{
		ContractInfo:              info,
		RegistrationDoctorFeeWei:  weiString(info.RegistrationDoctorFeeWei),
		RegistrationPatientFeeWei: weiString(info.RegistrationPatientFeeWei),
		AppointmentFeeWei:         weiString(info.AppointmentFeeWei),
		RegistrationDoctorFee:     decimalString(info.RegistrationDoctorFeeWei),
		RegistrationPatientFee:    decimalString(info.RegistrationPatientFeeWei),
		AppointmentFee:            decimalString(info.AppointmentFeeWei),
	}
}

type orderView struct {
	types.Order
	PayAmountWei string `json:"pay_amount_wei"`
	PayAmount    string `json:"pay_amount"`
}

type quoteView struct {
	Kind         fees.Kind       `json:"kind"`
	AmountWei    string          `json:"amount_wei"`
	Amount       string          `json:"amount"`
	Display      string          `json:"display"`
	UnitPriceWei string          `json:"unit_price_wei,omitempty"`
	Quantity     uint64          `json:"quantity,omitempty"`
	Medicine     *types.Medicine `json:"medicine,omitempty"`
}

type dashboardView struct {
	Medicines       []ledger.MedicineView   `json:"medicines"`
	ApprovedDoctors []ledger.DoctorView     `json:"approved_doctors"`
	Patients        []ledger.PatientView    `json:"patients"`
	Appointments    []types.Appointment     `json:"appointments"`
	Contract        *contractView           `json:"contract,omitempty"`
	Failures        []ledger.PartialFailure `json:"failures,omitempty"`
}

func weiString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func decimalString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return amount.ToDecimalString(n)
}

// dashboardHandler returns every dashboard collection. Failed sections are
// empty and listed under failures; the request itself does not fail.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := s.gateway.Dashboard(ctx)

	s.writeJSONResponse(w, http.StatusOK, dashboardView{
		Medicines:       s.enricher.Medicines(ctx, d.Medicines),
		ApprovedDoctors: s.enricher.Doctors(ctx, d.ApprovedDoctors),
		Patients:        s.enricher.Patients(ctx, d.Patients),
		Appointments:    d.Appointments,
		Contract:        newContractView(d.Contract),
		Failures:        d.Failures,
	})
}

func (s *Server) contractHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.gateway.ContractInfo(r.Context())
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, newContractView(info))
}

func (s *Server) roleHandler(w http.ResponseWriter, r *http.Request) {
	role := s.roles.Resolve(r.Context(), mux.Vars(r)["address"])
	s.writeJSONResponse(w, http.StatusOK, role)
}

func (s *Server) medicinesHandler(w http.ResponseWriter, r *http.Request) {
	ms, err := s.gateway.Medicines(r.Context())
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	if r.URL.Query().Get("active") == "true" {
		active := ms[:0]
		for _, m := range ms {
			if m.Active {
				active = append(active, m)
			}
		}
		ms = active
	}
	s.writeJSONResponse(w, http.StatusOK, s.enricher.Medicines(r.Context(), ms))
}

func (s *Server) medicineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	m, err := s.gateway.Medicine(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	if m == nil {
		s.writeErrorResponse(w, r, types.NewNotFoundError("medicine", id))
		return
	}
	s.writeJSONResponse(w, http.StatusOK, s.enricher.Medicine(r.Context(), *m))
}

func (s *Server) doctorsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		ds  []types.Doctor
		err error
	)
	if r.URL.Query().Get("approved") == "true" {
		ds, err = s.gateway.ApprovedDoctors(r.Context())
	} else {
		ds, err = s.gateway.Doctors(r.Context())
	}
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, s.enricher.Doctors(r.Context(), ds))
}

func (s *Server) patientsHandler(w http.ResponseWriter, r *http.Request) {
	ps, err := s.gateway.Patients(r.Context())
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, s.enricher.Patients(r.Context(), ps))
}

// scopedList serves a list query scoped by the {id} path variable
func (s *Server) scopedList(w http.ResponseWriter, r *http.Request, kind ledger.QueryKind) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	records, err := s.gateway.ReadAll(r.Context(), ledger.Query{Kind: kind, ID: id})
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, records)
}

func (s *Server) doctorAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	s.scopedList(w, r, ledger.QueryDoctorAppointments)
}

func (s *Server) patientAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	s.scopedList(w, r, ledger.QueryPatientAppointments)
}

func (s *Server) patientPrescriptionsHandler(w http.ResponseWriter, r *http.Request) {
	s.scopedList(w, r, ledger.QueryPatientPrescriptions)
}

func (s *Server) medicalHistoryHandler(w http.ResponseWriter, r *http.Request) {
	s.scopedList(w, r, ledger.QueryMedicalHistory)
}

func (s *Server) patientOrdersHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	orders, err := s.gateway.PatientOrders(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = orderView{Order: o, PayAmountWei: weiString(o.PayAmountWei), PayAmount: decimalString(o.PayAmountWei)}
	}
	s.writeJSONResponse(w, http.StatusOK, views)
}

// quoteHandler computes the live amount for a fee kind
func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := fees.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	req := fees.Request{Kind: kind}
	if kind == fees.FeePurchase {
		medicineID, err := queryInt(r, "medicine_id")
		if err != nil {
			s.writeErrorResponse(w, r, err)
			return
		}
		if medicineID <= 0 {
			s.writeErrorResponse(w, r, types.NewInvalidInputError("medicine_id must be a positive integer"))
			return
		}
		quantity, err := queryInt(r, "quantity")
		if err != nil {
			s.writeErrorResponse(w, r, err)
			return
		}
		req.MedicineID = uint64(medicineID)
		req.Quantity = quantity
	}

	quote, err := s.fees.RequiredFee(r.Context(), req)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	view := quoteView{
		Kind:      quote.Kind,
		AmountWei: quote.AmountWei.String(),
		Amount:    quote.Amount(),
		Display:   amount.FormatDisplay(quote.AmountWei, 4),
		Quantity:  quote.Quantity,
		Medicine:  quote.Medicine,
	}
	if quote.UnitPriceWei != nil {
		view.UnitPriceWei = quote.UnitPriceWei.String()
	}
	s.writeJSONResponse(w, http.StatusOK, view)
}

func (s *Server) friendsHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	friends, err := s.workflows.Messaging.Friends(r.Context(), sess)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, friends)
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	msgs, err := s.workflows.Messaging.Conversation(r.Context(), sess, strings.TrimSpace(mux.Vars(r)["friend"]))
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, msgs)
}
