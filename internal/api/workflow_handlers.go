package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/workflow"
	"github.com/medrex/medledger/pkg/types"
)

type registrationRequest struct {
	Role        string `json:"role"`
	MetadataRef string `json:"metadata_ref"`
	EstimateWei string `json:"estimate_wei,omitempty"`
	Estimate    string `json:"estimate,omitempty"`
}

type purchaseRequest struct {
	MedicineID  uint64 `json:"medicine_id"`
	Quantity    int64  `json:"quantity"`
	EstimateWei string `json:"estimate_wei,omitempty"`
	Estimate    string `json:"estimate,omitempty"`
}

type bookingRequest struct {
	workflow.BookingRequest
	EstimateWei string `json:"estimate_wei,omitempty"`
	Estimate    string `json:"estimate,omitempty"`
}

type prescriptionRequest struct {
	MedicineID uint64 `json:"medicine_id"`
	PatientID  uint64 `json:"patient_id"`
	Date       string `json:"date"`
}

type historyRequest struct {
	Entry string `json:"entry"`
}

type medicineUpdate struct {
	Price    string  `json:"price,omitempty"`
	Quantity *uint64 `json:"quantity,omitempty"`
	Discount *uint64 `json:"discount,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type feeUpdate struct {
	Amount string `json:"amount"`
}

type addressUpdate struct {
	Address string `json:"address"`
}

type messageRequest struct {
	Friend string `json:"friend"`
	Text   string `json:"text"`
}

// outcomeResponse reports a workflow transaction, including one whose
// outcome is still unknown
type outcomeResponse struct {
	*workflow.Outcome
	Error *errorResponse `json:"error,omitempty"`
}

type step func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error)

// runWorkflow resolves the session, runs the step and writes its outcome.
// An indeterminate transaction answers 202 with the transaction hash so the
// caller can look it up later.
func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request, status int, fn step) {
	sess, err := s.session(r)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	out, err := fn(r.Context(), sess)
	if err == nil {
		s.writeJSONResponse(w, status, outcomeResponse{Outcome: out})
		return
	}
	var le *types.LedgerError
	if out != nil && errors.As(err, &le) && le.Kind == types.KindIndeterminateState {
		s.writeJSONResponse(w, http.StatusAccepted, outcomeResponse{
			Outcome: out,
			Error: &errorResponse{
				Error:   le.UserMessage(),
				Kind:    le.Kind,
				Code:    le.Code,
				Details: le.Details,
				Status:  http.StatusAccepted,
			},
		})
		return
	}
	s.writeErrorResponse(w, r, err)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	estimate, err := parseEstimate(req.EstimateWei, req.Estimate)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	var fn step
	switch types.ParseRoleTag(strings.TrimSpace(req.Role)) {
	case types.RolePatient:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return s.workflows.Registration.RegisterPatient(ctx, sess, req.MetadataRef, estimate)
		}
	case types.RoleDoctor:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return s.workflows.Registration.RegisterDoctor(ctx, sess, req.MetadataRef, estimate)
		}
	default:
		s.writeErrorResponse(w, r, types.NewInvalidInputError("role must be patient or doctor"))
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, fn)
}

func (s *Server) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	estimate, err := parseEstimate(req.EstimateWei, req.Estimate)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Purchase.Buy(ctx, sess, req.MedicineID, req.Quantity, estimate)
	})
}

func (s *Server) bookHandler(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	estimate, err := parseEstimate(req.EstimateWei, req.Estimate)
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Booking.Book(ctx, sess, req.BookingRequest, estimate)
	})
}

func (s *Server) completeAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusOK, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Doctor.CompleteAppointment(ctx, sess, id)
	})
}

func (s *Server) prescribeHandler(w http.ResponseWriter, r *http.Request) {
	var req prescriptionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Doctor.Prescribe(ctx, sess, req.MedicineID, req.PatientID, req.Date)
	})
}

func (s *Server) updateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	var req historyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusOK, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Doctor.UpdateMedicalHistory(ctx, sess, id, req.Entry)
	})
}

func (s *Server) approveDoctorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusOK, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Admin.ApproveDoctor(ctx, sess, id)
	})
}

func (s *Server) addMedicineHandler(w http.ResponseWriter, r *http.Request) {
	var req workflow.NewMedicine
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Admin.AddMedicine(ctx, sess, req)
	})
}

// updateMedicineHandler changes one field of a listing per request, each
// field being a separate contract call
func (s *Server) updateMedicineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	var req medicineUpdate
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	admin := s.workflows.Admin
	var fn step
	switch field := mux.Vars(r)["field"]; {
	case field == "price" && req.Price != "":
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateMedicinePrice(ctx, sess, id, req.Price)
		}
	case field == "quantity" && req.Quantity != nil:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateMedicineQuantity(ctx, sess, id, *req.Quantity)
		}
	case field == "discount" && req.Discount != nil:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateMedicineDiscount(ctx, sess, id, *req.Discount)
		}
	case field == "active" && req.Active != nil:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.SetMedicineActive(ctx, sess, id, *req.Active)
		}
	default:
		s.writeErrorResponse(w, r, types.NewInvalidInputError("unknown field or missing value for "+field))
		return
	}
	s.runWorkflow(w, r, http.StatusOK, fn)
}

func (s *Server) updateFeeHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := fees.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	var req feeUpdate
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}

	admin := s.workflows.Admin
	var fn step
	switch kind {
	case fees.FeePatientRegistration:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateRegistrationFee(ctx, sess, types.RolePatient, req.Amount)
		}
	case fees.FeeDoctorRegistration:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateRegistrationFee(ctx, sess, types.RoleDoctor, req.Amount)
		}
	case fees.FeeAppointment:
		fn = func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
			return admin.UpdateAppointmentFee(ctx, sess, req.Amount)
		}
	default:
		s.writeErrorResponse(w, r, types.NewInvalidInputError("purchase amounts follow the medicine price"))
		return
	}
	s.runWorkflow(w, r, http.StatusOK, fn)
}

func (s *Server) updateAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req addressUpdate
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusOK, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Admin.UpdateAdminAddress(ctx, sess, req.Address)
	})
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErrorResponse(w, r, err)
		return
	}
	s.runWorkflow(w, r, http.StatusCreated, func(ctx context.Context, sess workflow.Session) (*workflow.Outcome, error) {
		return s.workflows.Messaging.Send(ctx, sess, req.Friend, req.Text)
	})
}
