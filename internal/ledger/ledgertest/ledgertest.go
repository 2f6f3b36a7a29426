// Package ledgertest provides test doubles for code that reads from the ledger contract.
package ledgertest

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/medrex/medledger/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockCaller is a testify mock of interfaces.LedgerCaller.
// Expectations take the function name followed by its arguments:
//
//	caller.On("Call", ledger.FnGetDoctorDetails, uint64(2)).Return(out, nil)
//	caller.On("CallAs", sender, ledger.FnGetMyFriendList).Return(out, nil)
type MockCaller struct {
	mock.Mock
}

func (m *MockCaller) Call(ctx context.Context, function string, args ...interface{}) (json.RawMessage, error) {
	callArgs := m.Called(append([]interface{}{function}, args...)...)
	raw, _ := callArgs.Get(0).(json.RawMessage)
	return raw, callArgs.Error(1)
}

func (m *MockCaller) CallAs(ctx context.Context, from, function string, args ...interface{}) (json.RawMessage, error) {
	callArgs := m.Called(append([]interface{}{from, function}, args...)...)
	raw, _ := callArgs.Get(0).(json.RawMessage)
	return raw, callArgs.Error(1)
}

// Output encodes contract outputs the way the RPC client returns them
func Output(values ...interface{}) json.RawMessage {
	out, err := json.Marshal(values)
	if err != nil {
		panic(err)
	}
	return out
}

// Uint encodes an integer output value
func Uint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// Wei encodes a decimal integer literal, panicking on bad input
func Wei(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer literal " + s)
	}
	return n
}

func bigOrZero(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// MedicineRow encodes a medicine tuple positionally
func MedicineRow(m types.Medicine) []interface{} {
	return []interface{}{
		Uint(m.ID), m.MetadataRef, bigOrZero(m.PriceWei), Uint(m.Quantity),
		Uint(m.DiscountPercent), m.Location, m.Active,
	}
}

// DoctorRow encodes a doctor tuple positionally
func DoctorRow(d types.Doctor) []interface{} {
	return []interface{}{
		Uint(d.ID), d.Address, d.MetadataRef, d.Approved,
		Uint(d.AppointmentCount), Uint(d.SuccessfulTreatmentCount),
	}
}

// PatientRow encodes a patient tuple positionally
func PatientRow(p types.Patient) []interface{} {
	history := p.MedicalHistory
	if history == nil {
		history = []string{}
	}
	return []interface{}{Uint(p.ID), p.Address, p.MetadataRef, history}
}

// AppointmentRow encodes an appointment tuple positionally
func AppointmentRow(a types.Appointment) []interface{} {
	return []interface{}{
		Uint(a.ID), Uint(a.PatientID), Uint(a.DoctorID), a.From, a.To,
		a.Date, a.Condition, a.Message, a.Open,
	}
}

// PrescriptionRow encodes a prescription tuple positionally
func PrescriptionRow(p types.Prescription) []interface{} {
	return []interface{}{Uint(p.ID), Uint(p.MedicineID), Uint(p.DoctorID), Uint(p.PatientID), p.Date}
}

// OrderRow encodes an order tuple positionally
func OrderRow(o types.Order) []interface{} {
	return []interface{}{Uint(o.MedicineID), Uint(o.PatientID), Uint(o.Quantity), bigOrZero(o.PayAmountWei), o.Date}
}

// Rows wraps encoded tuples as the single list output of a get-all call
func Rows(rows ...[]interface{}) json.RawMessage {
	list := make([]interface{}, len(rows))
	for i, r := range rows {
		list[i] = r
	}
	return Output(list)
}
