package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/workflow"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
)

// WalletHeader carries the address of the connected account
const WalletHeader = "X-Wallet-Address"

// Options holds the collaborators of the HTTP server
type Options struct {
	Gateway   *ledger.ReadGateway
	Enricher  *ledger.Enricher
	Roles     workflow.RoleSource
	Fees      *fees.Calculator
	Workflows *workflow.Set
	Wallets   interfaces.WalletProvider
	Health    *monitoring.HealthManager
	Metrics   *monitoring.MetricsCollector
	Logger    *logger.Logger

	// Limiter throttles requests per account; nil disables throttling
	Limiter       *AccountLimiter
	AllowedOrigin string
}

// Server exposes the ledger reads and workflows over HTTP
type Server struct {
	gateway   *ledger.ReadGateway
	enricher  *ledger.Enricher
	roles     workflow.RoleSource
	fees      *fees.Calculator
	workflows *workflow.Set
	wallets   interfaces.WalletProvider
	health    *monitoring.HealthManager
	metrics   *monitoring.MetricsCollector
	logger    *logger.Logger
	limiter   *AccountLimiter
	origin    string
}

// NewServer creates a new HTTP server
func NewServer(opts Options) *Server {
	return &Server{
		gateway:   opts.Gateway,
		enricher:  opts.Enricher,
		roles:     opts.Roles,
		fees:      opts.Fees,
		workflows: opts.Workflows,
		wallets:   opts.Wallets,
		health:    opts.Health,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		limiter:   opts.Limiter,
		origin:    opts.AllowedOrigin,
	}
}

// SetupRoutes configures the HTTP routes
func (s *Server) SetupRoutes(router *mux.Router) {
	router.Use(securityHeadersMiddleware)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)

	// Reads
	api.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	api.HandleFunc("/contract", s.contractHandler).Methods("GET")
	api.HandleFunc("/roles/{address}", s.roleHandler).Methods("GET")
	api.HandleFunc("/medicines", s.medicinesHandler).Methods("GET")
	api.HandleFunc("/medicines/{id}", s.medicineHandler).Methods("GET")
	api.HandleFunc("/doctors", s.doctorsHandler).Methods("GET")
	api.HandleFunc("/doctors/{id}/appointments", s.doctorAppointmentsHandler).Methods("GET")
	api.HandleFunc("/patients", s.patientsHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/orders", s.patientOrdersHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/appointments", s.patientAppointmentsHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/prescriptions", s.patientPrescriptionsHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/history", s.medicalHistoryHandler).Methods("GET")
	api.HandleFunc("/quotes/{kind}", s.quoteHandler).Methods("GET")

	// Patient workflows
	api.HandleFunc("/registrations", s.registerHandler).Methods("POST")
	api.HandleFunc("/purchases", s.purchaseHandler).Methods("POST")
	api.HandleFunc("/appointments", s.bookHandler).Methods("POST")

	// Doctor workflows
	api.HandleFunc("/appointments/{id}/complete", s.completeAppointmentHandler).Methods("POST")
	api.HandleFunc("/prescriptions", s.prescribeHandler).Methods("POST")
	api.HandleFunc("/patients/{id}/history", s.updateHistoryHandler).Methods("POST")

	// Admin workflows
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/doctors/{id}/approve", s.approveDoctorHandler).Methods("POST")
	admin.HandleFunc("/medicines", s.addMedicineHandler).Methods("POST")
	admin.HandleFunc("/medicines/{id}/{field}", s.updateMedicineHandler).Methods("PUT")
	admin.HandleFunc("/fees/{kind}", s.updateFeeHandler).Methods("PUT")
	admin.HandleFunc("/address", s.updateAdminHandler).Methods("PUT")

	// Messaging
	api.HandleFunc("/messages", s.friendsHandler).Methods("GET")
	api.HandleFunc("/messages", s.sendMessageHandler).Methods("POST")
	api.HandleFunc("/messages/{friend}", s.conversationHandler).Methods("GET")

	if s.health != nil {
		router.HandleFunc("/health", s.health.HTTPHandler()).Methods("GET")
	}
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.logger.WithComponent("api").Info("Ledger gateway routes configured")
}

// Handler wraps the router with the CORS layer, which must see preflight
// requests before route matching
func (s *Server) Handler(router *mux.Router) http.Handler {
	return corsMiddleware(s.origin)(router)
}

// session builds the workflow session from the wallet header. A missing
// header yields an empty session, which workflows reject as not connected.
func (s *Server) session(r *http.Request) (workflow.Session, error) {
	address := strings.TrimSpace(r.Header.Get(WalletHeader))
	if address == "" || s.wallets == nil {
		return workflow.Session{}, nil
	}
	wallet, err := s.wallets.Wallet(address)
	if err != nil {
		return workflow.Session{}, types.NewInvalidInputError("invalid " + WalletHeader + " header")
	}
	return workflow.Session{Address: wallet.Address(), Wallet: wallet}, nil
}
