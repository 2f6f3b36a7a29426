package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/medrex/medledger/internal/ledger/ledgertest"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestGateway() (*ReadGateway, *ledgertest.MockCaller) {
	caller := &ledgertest.MockCaller{}
	return NewReadGateway(caller, logger.NewDiscard(), nil), caller
}

var (
	aspirin = types.Medicine{ID: 1, MetadataRef: "QmAspirin", PriceWei: ledgertest.Wei("1000000000000000000"), Quantity: 3, DiscountPercent: 10, Active: true, Location: "Lagos"}
	insulin = types.Medicine{ID: 2, MetadataRef: "QmInsulin", PriceWei: ledgertest.Wei("2500000000000000000"), Quantity: 10, Active: false, Location: "Abuja"}
	drHouse = types.Doctor{ID: 4, Address: "0x00000000000000000000000000000000000000d4", MetadataRef: "QmHouse", Approved: true, AppointmentCount: 2}
	alice   = types.Patient{ID: 9, Address: "0x00000000000000000000000000000000000000a1", MetadataRef: "QmAlice", MedicalHistory: []string{"flu"}}
)

func TestReadGateway_Medicines(t *testing.T) {
	gw, caller := setupTestGateway()
	caller.On("Call", FnGetAllMedicines).Return(ledgertest.Rows(ledgertest.MedicineRow(aspirin), ledgertest.MedicineRow(insulin)), nil)

	meds, err := gw.Medicines(context.Background())
	require.NoError(t, err)
	require.Len(t, meds, 2)
	assert.Equal(t, aspirin.PriceWei.String(), meds[0].PriceWei.String())
	assert.Equal(t, uint64(3), meds[0].Quantity)
	assert.False(t, meds[1].Active)
	caller.AssertExpectations(t)
}

func TestReadGateway_MedicineAbsentIsNil(t *testing.T) {
	gw, caller := setupTestGateway()
	caller.On("Call", FnGetAllMedicines).Return(ledgertest.Rows(ledgertest.MedicineRow(aspirin)), nil)

	m, err := gw.Medicine(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = gw.Medicine(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint64(1), m.ID)
}

func TestReadGateway_DoctorAbsent(t *testing.T) {
	gw, caller := setupTestGateway()
	zero := types.Doctor{Address: "0x0000000000000000000000000000000000000000"}
	caller.On("Call", FnGetDoctorDetails, uint64(5)).Return(ledgertest.Output(ledgertest.DoctorRow(zero)), nil)
	caller.On("Call", FnGetDoctorDetails, uint64(6)).Return(nil, &RPCError{Code: 3, Message: "execution reverted: doctor does not exist"})

	d, err := gw.Doctor(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = gw.Doctor(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = gw.Doctor(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, d)
	caller.AssertNumberOfCalls(t, "Call", 2)
}

func TestReadGateway_DoctorNetworkError(t *testing.T) {
	gw, caller := setupTestGateway()
	caller.On("Call", FnGetDoctorDetails, uint64(4)).Return(nil, types.NewNetworkError(errors.New("connection refused")))

	d, err := gw.Doctor(context.Background(), 4)
	assert.Nil(t, d)
	assert.True(t, types.IsKind(err, types.KindNetworkUnavailable))
}

func TestReadGateway_ReadOne(t *testing.T) {
	gw, caller := setupTestGateway()
	unapproved := drHouse
	unapproved.ID = 5
	unapproved.Approved = false
	caller.On("Call", FnGetDoctorDetails, uint64(4)).Return(ledgertest.Output(ledgertest.DoctorRow(drHouse)), nil)
	caller.On("Call", FnGetDoctorDetails, uint64(5)).Return(ledgertest.Output(ledgertest.DoctorRow(unapproved)), nil)
	caller.On("Call", FnGetPatientDetails, uint64(9)).Return(ledgertest.Output(ledgertest.PatientRow(alice)), nil)

	rec, err := gw.ReadOne(context.Background(), QueryDoctors, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rec.(*types.Doctor).ID)

	rec, err = gw.ReadOne(context.Background(), QueryApprovedDoctors, 5)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = gw.ReadOne(context.Background(), QueryPatients, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"flu"}, rec.(*types.Patient).MedicalHistory)

	_, err = gw.ReadOne(context.Background(), QueryFriends, 1)
	assert.True(t, types.IsKind(err, types.KindInvalidInput))
}

func TestReadGateway_ScopedReads(t *testing.T) {
	gw, caller := setupTestGateway()
	order := types.Order{MedicineID: 1, PatientID: 9, Quantity: 2, PayAmountWei: ledgertest.Wei("1800000000000000000"), Date: "2024-01-02"}
	caller.On("Call", FnGetPatientOrders, uint64(9)).Return(ledgertest.Rows(ledgertest.OrderRow(order)), nil)
	caller.On("CallAs", alice.Address, FnGetMyFriendList).Return(ledgertest.Rows([]interface{}{drHouse.Address, "House"}), nil)

	orders, err := gw.ReadAll(context.Background(), Query{Kind: QueryPatientOrders, ID: 9})
	require.NoError(t, err)
	require.Len(t, orders.([]types.Order), 1)
	assert.Equal(t, "1800000000000000000", orders.([]types.Order)[0].PayAmountWei.String())

	friends, err := gw.Friends(context.Background(), alice.Address)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "House", friends[0].Name)
	caller.AssertExpectations(t)
}

func TestReadGateway_ContractInfo(t *testing.T) {
	gw, caller := setupTestGateway()
	caller.On("Call", FnAdmin).Return(ledgertest.Output("0x00000000000000000000000000000000000000aa"), nil)
	caller.On("Call", FnRegistrationDoctorFee).Return(ledgertest.Output("2000000000000000000"), nil)
	caller.On("Call", FnRegistrationPatientFee).Return(ledgertest.Output("1000000000000000000"), nil)
	caller.On("Call", FnAppointmentFee).Return(ledgertest.Output("500000000000000000"), nil)
	caller.On("Call", FnDoctorCount).Return(ledgertest.Output("4"), nil)
	caller.On("Call", FnPatientCount).Return(ledgertest.Output("9"), nil)
	caller.On("Call", FnMedicineCount).Return(ledgertest.Output("2"), nil)
	caller.On("Call", FnAppointmentCount).Return(ledgertest.Output("3"), nil)
	caller.On("Call", FnPrescriptionCount).Return(ledgertest.Output("1"), nil)

	info, err := gw.ContractInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", info.Admin)
	assert.Equal(t, "2000000000000000000", info.RegistrationDoctorFeeWei.String())
	assert.Equal(t, "1000000000000000000", info.RegistrationPatientFeeWei.String())
	assert.Equal(t, "500000000000000000", info.AppointmentFeeWei.String())
	assert.Equal(t, uint64(4), info.DoctorCount)
	assert.Equal(t, uint64(9), info.PatientCount)
	assert.Equal(t, uint64(1), info.PrescriptionCount)
	caller.AssertExpectations(t)
}

func TestReadGateway_Fee(t *testing.T) {
	gw, caller := setupTestGateway()
	caller.On("Call", FnAppointmentFee).Return(ledgertest.Output("0x6f05b59d3b20000"), nil)

	fee, err := gw.Fee(context.Background(), FnAppointmentFee)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", fee.String())

	_, err = gw.Fee(context.Background(), FnDoctorCount)
	assert.Error(t, err)
}

func TestReadGateway_DashboardPartialFailure(t *testing.T) {
	caller := &ledgertest.MockCaller{}
	metrics := monitoring.NewMetricsCollector("test")
	gw := NewReadGateway(caller, logger.NewDiscard(), metrics)

	appt := types.Appointment{ID: 1, PatientID: 9, DoctorID: 4, Date: "2024-02-01", Open: true}
	caller.On("Call", FnGetAllMedicines).Return(ledgertest.Rows(ledgertest.MedicineRow(aspirin)), nil)
	caller.On("Call", FnGetAllApprovedDoctors).Return(nil, types.NewNetworkError(errors.New("timeout")))
	caller.On("Call", FnGetAllPatients).Return(ledgertest.Rows(ledgertest.PatientRow(alice)), nil)
	caller.On("Call", FnGetAllAppointments).Return(ledgertest.Rows(ledgertest.AppointmentRow(appt)), nil)
	caller.On("Call", mock.AnythingOfType("string")).Return(ledgertest.Output("1"), nil)

	d := gw.Dashboard(context.Background())

	assert.Len(t, d.Medicines, 1)
	assert.Len(t, d.Patients, 1)
	assert.Len(t, d.Appointments, 1)
	assert.NotNil(t, d.ApprovedDoctors)
	assert.Empty(t, d.ApprovedDoctors)

	require.Len(t, d.Failures, 1)
	assert.Equal(t, QueryApprovedDoctors, d.Failures[0].Query.Kind)
	assert.Equal(t, types.KindNetworkUnavailable, d.Failures[0].Kind)

	require.NotNil(t, d.Contract)
	assert.Equal(t, uint64(1), d.Contract.DoctorCount)
}

func TestReadGateway_BatchKeepsOrderAndDegrades(t *testing.T) {
	caller := &ledgertest.MockCaller{}
	metrics := monitoring.NewMetricsCollector("test")
	gw := NewReadGateway(caller, logger.NewDiscard(), metrics)

	caller.On("Call", FnGetAllMedicines).Return(ledgertest.Rows(ledgertest.MedicineRow(aspirin)), nil)
	caller.On("Call", FnGetAllApprovedDoctors).Return(nil, types.NewNetworkError(errors.New("timeout")))
	caller.On("Call", FnGetAllPatients).Return(ledgertest.Rows(ledgertest.PatientRow(alice)), nil)
	caller.On("Call", FnGetAllAppointments).Return(ledgertest.Rows(), nil)

	sections := gw.Batch(context.Background(),
		Query{Kind: QueryMedicines},
		Query{Kind: QueryApprovedDoctors},
		Query{Kind: QueryPatients},
		Query{Kind: QueryAppointments},
	)

	require.Len(t, sections, 4)
	assert.Equal(t, QueryMedicines, sections[0].Query.Kind)
	assert.False(t, sections[0].Failed())
	assert.Len(t, sections[0].Records.([]types.Medicine), 1)

	assert.True(t, sections[1].Failed())
	assert.Equal(t, types.KindNetworkUnavailable, sections[1].Failure.Kind)
	assert.Empty(t, sections[1].Records.([]types.Doctor))

	assert.Len(t, sections[2].Records.([]types.Patient), 1)
	assert.Empty(t, sections[3].Records.([]types.Appointment))

	series, err := testutil.GatherAndCount(metrics.Registry(), "ledger_read_partial_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}
