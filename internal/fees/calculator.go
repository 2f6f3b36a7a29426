package fees

import (
	"context"
	"fmt"
	"math/big"

	"github.com/medrex/medledger/internal/amount"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/pkg/types"
)

// Kind names what a fee pays for
type Kind string

const (
	FeeDoctorRegistration  Kind = "doctor_registration"
	FeePatientRegistration Kind = "patient_registration"
	FeeAppointment         Kind = "appointment"
	FeePurchase            Kind = "purchase"
)

// ParseKind maps a wire name to a fee kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case FeeDoctorRegistration, FeePatientRegistration, FeeAppointment, FeePurchase:
		return k, nil
	}
	return "", types.NewInvalidInputError(fmt.Sprintf("unknown fee kind %q", s))
}

// Request describes the value-moving call a fee is needed for
type Request struct {
	Kind       Kind   `json:"kind"`
	MedicineID uint64 `json:"medicine_id,omitempty"`
	Quantity   int64  `json:"quantity,omitempty"`
}

// Quote is a freshly computed amount plus what it was computed from
type Quote struct {
	Kind         Kind            `json:"kind"`
	AmountWei    *big.Int        `json:"-"`
	UnitPriceWei *big.Int        `json:"-"`
	Quantity     uint64          `json:"quantity,omitempty"`
	Medicine     *types.Medicine `json:"medicine,omitempty"`
}

// Amount returns the quote in decimal form for display
func (q *Quote) Amount() string {
	return amount.ToDecimalString(q.AmountWei)
}

// Reader is the slice of the read gateway fee computation needs
type Reader interface {
	Fee(ctx context.Context, function string) (*big.Int, error)
	Medicine(ctx context.Context, id uint64) (*types.Medicine, error)
}

// Calculator computes the value to attach to registration, booking and
// purchase calls. Every computation reads live contract state.
type Calculator struct {
	reader Reader
}

// NewCalculator creates a new fee calculator
func NewCalculator(reader Reader) *Calculator {
	return &Calculator{reader: reader}
}

// DiscountedUnitPrice returns price × (100 − discount) / 100, floored
func DiscountedUnitPrice(m *types.Medicine) *big.Int {
	return m.DiscountedPriceWei()
}

// RequiredFee computes the amount to attach for req from live state
func (c *Calculator) RequiredFee(ctx context.Context, req Request) (*Quote, error) {
	switch req.Kind {
	case FeeDoctorRegistration:
		return c.contractFee(ctx, req.Kind, ledger.FnRegistrationDoctorFee)
	case FeePatientRegistration:
		return c.contractFee(ctx, req.Kind, ledger.FnRegistrationPatientFee)
	case FeeAppointment:
		return c.contractFee(ctx, req.Kind, ledger.FnAppointmentFee)
	case FeePurchase:
		return c.purchase(ctx, req)
	default:
		return nil, types.NewInvalidInputError(fmt.Sprintf("unknown fee kind %q", req.Kind))
	}
}

// Verify recomputes the amount and compares it with the estimate the user
// was shown. A difference is reported as StaleQuote carrying both amounts,
// never silently replaced. A nil estimate skips the comparison.
func (c *Calculator) Verify(ctx context.Context, req Request, estimate *big.Int) (*Quote, error) {
	quote, err := c.RequiredFee(ctx, req)
	if err != nil {
		return nil, err
	}
	if estimate != nil && estimate.Cmp(quote.AmountWei) != 0 {
		return nil, types.NewStaleQuoteError(estimate, quote.AmountWei)
	}
	return quote, nil
}

func (c *Calculator) contractFee(ctx context.Context, kind Kind, function string) (*Quote, error) {
	fee, err := c.reader.Fee(ctx, function)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", function, err)
	}
	return &Quote{Kind: kind, AmountWei: fee}, nil
}

func (c *Calculator) purchase(ctx context.Context, req Request) (*Quote, error) {
	if req.Quantity <= 0 {
		return nil, types.NewInvalidQuantityError(req.Quantity)
	}
	qty := uint64(req.Quantity)

	m, err := c.reader.Medicine(ctx, req.MedicineID)
	if err != nil {
		return nil, fmt.Errorf("failed to read medicine %d: %w", req.MedicineID, err)
	}
	if m == nil {
		return nil, types.NewNotFoundError("medicine", req.MedicineID)
	}
	if !m.Active {
		return nil, types.NewInactiveListingError(m.ID)
	}
	if qty > m.Quantity {
		return nil, types.NewInsufficientStockError(qty, m.Quantity)
	}

	unit := DiscountedUnitPrice(m)
	return &Quote{
		Kind:         FeePurchase,
		AmountWei:    amount.Mul(unit, qty),
		UnitPriceWei: unit,
		Quantity:     qty,
		Medicine:     m,
	}, nil
}
