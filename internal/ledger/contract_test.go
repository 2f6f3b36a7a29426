package ledger

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContract(t *testing.T) {
	c, err := NewContract(testContractAddress)
	require.NoError(t, err)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", c.Address())

	_, err = NewContract("0x1234")
	assert.Error(t, err)
}

func TestContract_EveryFunctionIsBound(t *testing.T) {
	c, err := NewContract(testContractAddress)
	require.NoError(t, err)

	functions := []string{
		FnAddMedicine, FnUpdateMedicinePrice, FnUpdateMedicineQuantity, FnUpdateMedicineDiscount,
		FnUpdateMedicineActive, FnGetAllMedicines, FnRegisterDoctor, FnApproveDoctor, FnGetDoctorID,
		FnGetDoctorDetails, FnGetAllDoctors, FnGetAllApprovedDoctors, FnRegisterPatient, FnGetPatientID,
		FnGetPatientDetails, FnGetAllPatients, FnUpdatePatientMedicalHistory, FnBookAppointment,
		FnCompleteAppointment, FnGetAllAppointments, FnGetPatientAppointments, FnGetDoctorAppointments,
		FnPrescribeMedicine, FnGetPatientPrescriptions, FnBuyMedicine, FnGetPatientOrders,
		FnSendMessage, FnReadMessage, FnGetMyFriendList, FnUpdateRegistrationDoctorFee,
		FnUpdateRegistrationPatientFee, FnUpdateAppointmentFee, FnUpdateAdminAddress, FnAdmin,
		FnRegistrationDoctorFee, FnRegistrationPatientFee, FnAppointmentFee, FnDoctorCount,
		FnPatientCount, FnMedicineCount, FnAppointmentCount, FnPrescriptionCount,
		FnCheckUserExists, FnGetUserRole,
	}

	selectors := make(map[string]string)
	for _, fn := range functions {
		sel, err := c.Selector(fn)
		require.NoError(t, err, fn)
		assert.Len(t, sel, 10, fn)

		other, dup := selectors[sel]
		assert.False(t, dup, "%s and %s share selector %s", fn, other, sel)
		selectors[sel] = fn
	}
}

func TestContract_IsPayable(t *testing.T) {
	c, err := NewContract(testContractAddress)
	require.NoError(t, err)

	for _, fn := range []string{FnRegisterDoctor, FnRegisterPatient, FnBookAppointment, FnBuyMedicine} {
		assert.True(t, c.IsPayable(fn), fn)
	}
	for _, fn := range []string{FnApproveDoctor, FnAddMedicine, FnGetAllMedicines, "unknown"} {
		assert.False(t, c.IsPayable(fn), fn)
	}
}

func TestContract_EncodeCall(t *testing.T) {
	c, err := NewContract(testContractAddress)
	require.NoError(t, err)

	data, err := c.EncodeCall(FnBuyMedicine, uint64(7), big.NewInt(3))
	require.NoError(t, err)
	require.Len(t, data, 4+64)

	sel, err := c.Selector(FnBuyMedicine)
	require.NoError(t, err)
	assert.Equal(t, sel, "0x"+hex.EncodeToString(data[:4]))
	assert.Equal(t, word(7), hex.EncodeToString(data[4:36]))
	assert.Equal(t, word(3), hex.EncodeToString(data[36:68]))

	_, err = c.EncodeCall(FnBuyMedicine, uint64(7))
	assert.Error(t, err, "argument count mismatch")

	_, err = c.EncodeCall("selfDestruct")
	assert.Error(t, err)
}

func TestContract_DecodeOutputs(t *testing.T) {
	c, err := NewContract(testContractAddress)
	require.NoError(t, err)

	data, err := hex.DecodeString(word(1))
	require.NoError(t, err)
	out, err := c.DecodeOutputs(FnCheckUserExists, data)
	require.NoError(t, err)

	exists, err := decodeBool(out)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.DecodeOutputs(FnCheckUserExists, []byte{0x01})
	assert.Error(t, err)
}

func TestWireArgs(t *testing.T) {
	args := wireArgs([]interface{}{big.NewInt(5), uint64(6), int64(7), 8, "text", true})
	assert.Equal(t, []interface{}{"5", "6", "7", "8", "text", true}, args)
}
