package types

import (
	"math/big"
	"strings"
)

// Doctor represents a doctor registration held by the ledger contract
type Doctor struct {
	ID                       uint64 `json:"id"`
	Address                  string `json:"address"`
	MetadataRef              string `json:"metadata_ref"`
	Approved                 bool   `json:"approved"`
	AppointmentCount         uint64 `json:"appointment_count"`
	SuccessfulTreatmentCount uint64 `json:"successful_treatment_count"`
}

// Patient represents a patient registration held by the ledger contract
type Patient struct {
	ID             uint64   `json:"id"`
	Address        string   `json:"address"`
	MetadataRef    string   `json:"metadata_ref"`
	MedicalHistory []string `json:"medical_history"`
}

// Medicine represents an inventory listing
type Medicine struct {
	ID              uint64   `json:"id"`
	MetadataRef     string   `json:"metadata_ref"`
	PriceWei        *big.Int `json:"-"`
	Quantity        uint64   `json:"quantity"`
	DiscountPercent uint64   `json:"discount_percent"`
	Active          bool     `json:"active"`
	Location        string   `json:"location"`
}

// DiscountedPriceWei returns price × (100 − discount) / 100, floored.
// A discount above 100 is treated as 100 so the result never goes negative.
func (m *Medicine) DiscountedPriceWei() *big.Int {
	if m.PriceWei == nil {
		return new(big.Int)
	}
	discount := m.DiscountPercent
	if discount > 100 {
		discount = 100
	}
	out := new(big.Int).Mul(m.PriceWei, big.NewInt(int64(100-discount)))
	return out.Quo(out, big.NewInt(100))
}

// Appointment represents a booked consultation
type Appointment struct {
	ID        uint64 `json:"id"`
	PatientID uint64 `json:"patient_id"`
	DoctorID  uint64 `json:"doctor_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Date      string `json:"date"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
	Open      bool   `json:"is_open"`
}

// Prescription represents a doctor-issued prescription
type Prescription struct {
	ID         uint64 `json:"id"`
	MedicineID uint64 `json:"medicine_id"`
	DoctorID   uint64 `json:"doctor_id"`
	PatientID  uint64 `json:"patient_id"`
	Date       string `json:"date"`
}

// Order represents a completed medicine purchase
type Order struct {
	MedicineID   uint64   `json:"medicine_id"`
	PatientID    uint64   `json:"patient_id"`
	Quantity     uint64   `json:"quantity"`
	PayAmountWei *big.Int `json:"-"`
	Date         string   `json:"date"`
}

// Message represents a chat message between two registered accounts
type Message struct {
	Sender    string `json:"sender"`
	Timestamp uint64 `json:"timestamp"`
	Text      string `json:"text"`
}

// Friend represents an entry in an account's friend list
type Friend struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ContractInfo is a snapshot of the contract's admin, fees and counters
type ContractInfo struct {
	Admin                     string   `json:"admin"`
	RegistrationDoctorFeeWei  *big.Int `json:"-"`
	RegistrationPatientFeeWei *big.Int `json:"-"`
	AppointmentFeeWei         *big.Int `json:"-"`
	DoctorCount               uint64   `json:"doctor_count"`
	PatientCount              uint64   `json:"patient_count"`
	MedicineCount             uint64   `json:"medicine_count"`
	AppointmentCount          uint64   `json:"appointment_count"`
	PrescriptionCount         uint64   `json:"prescription_count"`
}

// Metadata is the off-chain document referenced by a record's metadata ref
type Metadata struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Image          string                 `json:"image,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Manufacturer   string                 `json:"manufacturer,omitempty"`
	Specialization string                 `json:"specialization,omitempty"`
	Qualification  string                 `json:"qualification,omitempty"`
	Email          string                 `json:"email,omitempty"`
	Phone          string                 `json:"phone,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
	Degraded       bool                   `json:"degraded,omitempty"`
}

// EntityKind names the kind of record a metadata document describes
type EntityKind string

const (
	EntityMedicine EntityKind = "Medicine"
	EntityDoctor   EntityKind = "Doctor"
	EntityPatient  EntityKind = "Patient"
)

// TxRequest describes a state-changing call handed to a wallet for signing
type TxRequest struct {
	From     string        `json:"from"`
	To       string        `json:"to"`
	Function string        `json:"function"`
	Selector string        `json:"selector"`
	Args     []interface{} `json:"args"`
	Value    *big.Int      `json:"-"`
	Data     []byte        `json:"-"`
}

// Receipt is the finalized outcome of a submitted transaction
type Receipt struct {
	TxHash       string `json:"tx_hash"`
	BlockNumber  uint64 `json:"block_number"`
	Success      bool   `json:"success"`
	RevertReason string `json:"revert_reason,omitempty"`
}

// SameAddress compares two account addresses ignoring letter case and 0x prefix case
func SameAddress(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(trimHexPrefix(a), trimHexPrefix(b))
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// MetadataRequest identifies the off-chain document of one record
type MetadataRequest struct {
	Kind EntityKind `json:"kind"`
	ID   uint64     `json:"id"`
	Ref  string     `json:"ref"`
}
