package workflow

import (
	"context"
	"math/big"

	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/types"
)

// PurchaseWorkflow buys medicine on behalf of a registered patient
type PurchaseWorkflow struct {
	base
}

// NewPurchaseWorkflow creates a new purchase workflow
func NewPurchaseWorkflow(deps Deps) *PurchaseWorkflow {
	return &PurchaseWorkflow{base: newBase("purchase", deps)}
}

// Quote computes the current amount for buying quantity units of a medicine
func (w *PurchaseWorkflow) Quote(ctx context.Context, medicineID uint64, quantity int64) (*fees.Quote, error) {
	return w.deps.Fees.RequiredFee(ctx, fees.Request{Kind: fees.FeePurchase, MedicineID: medicineID, Quantity: quantity})
}

// Buy purchases quantity units of a medicine. The amount is recomputed from
// the live record right before submission; a non-nil estimate that differs
// from it fails with StaleQuote and nothing is submitted.
func (w *PurchaseWorkflow) Buy(ctx context.Context, sess Session, medicineID uint64, quantity int64, estimate *big.Int) (*Outcome, error) {
	role, err := w.session(ctx, sess)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, w.fail(ctx, sess, types.NewInvalidQuantityError(quantity))
	}
	if err := requireRole(role, role.IsPatient(), "buying medicine"); err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	quote, err := w.deps.Fees.Verify(ctx, fees.Request{Kind: fees.FeePurchase, MedicineID: medicineID, Quantity: quantity}, estimate)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnBuyMedicine,
		Args:     []interface{}{medicineID, quote.Quantity},
		Value:    quote.AmountWei,
		RefIDs:   map[string]uint64{"medicine id": medicineID},
	},
		ledger.Query{Kind: ledger.QueryMedicines},
		ledger.Query{Kind: ledger.QueryPatientOrders, ID: role.ID},
	)
}
