package ledger

import (
	"context"
	"math/big"

	"github.com/medrex/medledger/internal/amount"
	"github.com/medrex/medledger/pkg/types"
)

const displayDigits = 4

// MetadataLookup resolves the off-chain documents of records. It never fails;
// unavailable documents come back synthesized and flagged degraded.
type MetadataLookup interface {
	Resolve(ctx context.Context, kind types.EntityKind, id uint64, ref string) *types.Metadata
	ResolveMany(ctx context.Context, reqs []types.MetadataRequest) []*types.Metadata
}

// MedicineView merges a listing with its metadata and display prices
type MedicineView struct {
	types.Medicine
	Metadata           *types.Metadata `json:"metadata"`
	PriceWei           string          `json:"price_wei"`
	DiscountedPriceWei string          `json:"discounted_price_wei"`
	Price              string          `json:"price"`
	DiscountedPrice    string          `json:"discounted_price"`
	PriceDisplay       string          `json:"price_display"`
}

// DoctorView merges a doctor record with its profile document
type DoctorView struct {
	types.Doctor
	Metadata *types.Metadata `json:"metadata"`
}

// PatientView merges a patient record with its profile document
type PatientView struct {
	types.Patient
	Metadata *types.Metadata `json:"metadata"`
}

// Enricher joins on-chain records with off-chain metadata
type Enricher struct {
	lookup MetadataLookup
}

// NewEnricher creates a new enricher
func NewEnricher(lookup MetadataLookup) *Enricher {
	return &Enricher{lookup: lookup}
}

// Medicine builds the view of a single listing
func (e *Enricher) Medicine(ctx context.Context, m types.Medicine) MedicineView {
	return medicineView(m, e.lookup.Resolve(ctx, types.EntityMedicine, m.ID, m.MetadataRef))
}

// Medicines builds views for a list of listings
func (e *Enricher) Medicines(ctx context.Context, ms []types.Medicine) []MedicineView {
	reqs := make([]types.MetadataRequest, len(ms))
	for i, m := range ms {
		reqs[i] = types.MetadataRequest{Kind: types.EntityMedicine, ID: m.ID, Ref: m.MetadataRef}
	}
	docs := e.lookup.ResolveMany(ctx, reqs)

	out := make([]MedicineView, len(ms))
	for i, m := range ms {
		out[i] = medicineView(m, docs[i])
	}
	return out
}

// Doctors builds views for a list of doctors
func (e *Enricher) Doctors(ctx context.Context, ds []types.Doctor) []DoctorView {
	reqs := make([]types.MetadataRequest, len(ds))
	for i, d := range ds {
		reqs[i] = types.MetadataRequest{Kind: types.EntityDoctor, ID: d.ID, Ref: d.MetadataRef}
	}
	docs := e.lookup.ResolveMany(ctx, reqs)

	out := make([]DoctorView, len(ds))
	for i, d := range ds {
		out[i] = DoctorView{Doctor: d, Metadata: docs[i]}
	}
	return out
}

// Patients builds views for a list of patients
func (e *Enricher) Patients(ctx context.Context, ps []types.Patient) []PatientView {
	reqs := make([]types.MetadataRequest, len(ps))
	for i, p := range ps {
		reqs[i] = types.MetadataRequest{Kind: types.EntityPatient, ID: p.ID, Ref: p.MetadataRef}
	}
	docs := e.lookup.ResolveMany(ctx, reqs)

	out := make([]PatientView, len(ps))
	for i, p := range ps {
		out[i] = PatientView{Patient: p, Metadata: docs[i]}
	}
	return out
}

func medicineView(m types.Medicine, doc *types.Metadata) MedicineView {
	price := m.PriceWei
	if price == nil {
		price = new(big.Int)
	}
	discounted := m.DiscountedPriceWei()
	return MedicineView{
		Medicine:           m,
		Metadata:           doc,
		PriceWei:           price.String(),
		DiscountedPriceWei: discounted.String(),
		Price:              amount.ToDecimalString(price),
		DiscountedPrice:    amount.ToDecimalString(discounted),
		PriceDisplay:       amount.FormatDisplay(discounted, displayDigits),
	}
}
