package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// Contract function names as exposed by the healthcare ledger contract
const (
	FnAddMedicine            = "addMedicine"
	FnUpdateMedicinePrice    = "updateMedicinePrice"
	FnUpdateMedicineQuantity = "updateMedicineQuantity"
	FnUpdateMedicineDiscount = "updateMedicineDiscount"
	FnUpdateMedicineActive   = "updateMedicineActive"
	FnGetAllMedicines        = "getAllMedicines"

	FnRegisterDoctor        = "registerDoctor"
	FnApproveDoctor         = "approveDoctor"
	FnGetDoctorID           = "getDoctorId"
	FnGetDoctorDetails      = "getDoctorDetails"
	FnGetAllDoctors         = "getAllDoctors"
	FnGetAllApprovedDoctors = "getAllApprovedDoctors"

	FnRegisterPatient             = "registerPatient"
	FnGetPatientID                = "getPatientId"
	FnGetPatientDetails           = "getPatientDetails"
	FnGetAllPatients              = "getAllPatients"
	FnUpdatePatientMedicalHistory = "updatePatientMedicalHistory"

	FnBookAppointment        = "bookAppointment"
	FnCompleteAppointment    = "completeAppointment"
	FnGetAllAppointments     = "getAllAppointments"
	FnGetPatientAppointments = "getPatientAppointments"
	FnGetDoctorAppointments  = "getDoctorAppointments"

	FnPrescribeMedicine       = "prescribeMedicine"
	FnGetPatientPrescriptions = "getPatientPrescriptions"

	FnBuyMedicine      = "buyMedicine"
	FnGetPatientOrders = "getPatientOrders"

	FnSendMessage     = "sendMessage"
	FnReadMessage     = "readMessage"
	FnGetMyFriendList = "getMyFriendList"

	FnUpdateRegistrationDoctorFee  = "updateRegistrationDoctorFee"
	FnUpdateRegistrationPatientFee = "updateRegistrationPatientFee"
	FnUpdateAppointmentFee         = "updateAppointmentFee"
	FnUpdateAdminAddress           = "updateAdminAddress"

	FnAdmin                  = "admin"
	FnRegistrationDoctorFee  = "registrationDoctorFee"
	FnRegistrationPatientFee = "registrationPatientFee"
	FnAppointmentFee         = "appointmentFee"
	FnDoctorCount            = "doctorCount"
	FnPatientCount           = "patientCount"
	FnMedicineCount          = "medicineCount"
	FnAppointmentCount       = "appointmentCount"
	FnPrescriptionCount      = "prescriptionCount"
	FnCheckUserExists        = "checkUserExists"
	FnGetUserRole            = "getUserRole"
)

func param(name, typ string) *abi.Parameter {
	return &abi.Parameter{Name: name, Type: typ}
}

func tuple(name, typ string, components ...*abi.Parameter) *abi.Parameter {
	return &abi.Parameter{Name: name, Type: typ, Components: components}
}

var (
	medicineComponents = []*abi.Parameter{
		param("id", "uint256"),
		param("ipfsHash", "string"),
		param("price", "uint256"),
		param("quantity", "uint256"),
		param("discount", "uint256"),
		param("currentLocation", "string"),
		param("isActive", "bool"),
	}
	doctorComponents = []*abi.Parameter{
		param("id", "uint256"),
		param("accountAddress", "address"),
		param("ipfsHash", "string"),
		param("isApproved", "bool"),
		param("appointmentCount", "uint256"),
		param("successfulTreatmentCount", "uint256"),
	}
	patientComponents = []*abi.Parameter{
		param("id", "uint256"),
		param("accountAddress", "address"),
		param("ipfsHash", "string"),
		param("medicalHistory", "string[]"),
	}
	appointmentComponents = []*abi.Parameter{
		param("id", "uint256"),
		param("patientId", "uint256"),
		param("doctorId", "uint256"),
		param("from", "string"),
		param("to", "string"),
		param("appointmentDate", "string"),
		param("condition", "string"),
		param("message", "string"),
		param("isOpen", "bool"),
	}
	prescriptionComponents = []*abi.Parameter{
		param("id", "uint256"),
		param("medicineId", "uint256"),
		param("doctorId", "uint256"),
		param("patientId", "uint256"),
		param("date", "string"),
	}
	orderComponents = []*abi.Parameter{
		param("medicineId", "uint256"),
		param("patientId", "uint256"),
		param("quantity", "uint256"),
		param("payAmount", "uint256"),
		param("date", "string"),
	}
	messageComponents = []*abi.Parameter{
		param("sender", "address"),
		param("timestamp", "uint256"),
		param("msg", "string"),
	}
	friendComponents = []*abi.Parameter{
		param("pubkey", "address"),
		param("name", "string"),
	}
)

func view(name string, inputs []*abi.Parameter, outputs ...*abi.Parameter) *abi.Entry {
	return &abi.Entry{
		Type:            abi.Function,
		Name:            name,
		StateMutability: abi.View,
		Inputs:          inputs,
		Outputs:         outputs,
	}
}

func write(name string, payable bool, inputs ...*abi.Parameter) *abi.Entry {
	mutability := abi.NonPayable
	if payable {
		mutability = abi.Payable
	}
	return &abi.Entry{
		Type:            abi.Function,
		Name:            name,
		StateMutability: mutability,
		Inputs:          inputs,
		Outputs:         abi.ParameterArray{},
	}
}

func in(params ...*abi.Parameter) []*abi.Parameter { return params }

// ContractABI describes every contract function this layer consumes
var ContractABI = abi.ABI{
	// medicine
	write(FnAddMedicine, false, param("ipfsHash", "string"), param("price", "uint256"), param("quantity", "uint256"), param("discount", "uint256"), param("currentLocation", "string")),
	write(FnUpdateMedicinePrice, false, param("medicineId", "uint256"), param("price", "uint256")),
	write(FnUpdateMedicineQuantity, false, param("medicineId", "uint256"), param("quantity", "uint256")),
	write(FnUpdateMedicineDiscount, false, param("medicineId", "uint256"), param("discount", "uint256")),
	write(FnUpdateMedicineActive, false, param("medicineId", "uint256"), param("isActive", "bool")),
	view(FnGetAllMedicines, nil, tuple("", "tuple[]", medicineComponents...)),

	// doctor
	write(FnRegisterDoctor, true, param("ipfsHash", "string")),
	write(FnApproveDoctor, false, param("doctorId", "uint256")),
	view(FnGetDoctorID, in(param("account", "address")), param("", "uint256")),
	view(FnGetDoctorDetails, in(param("doctorId", "uint256")), tuple("", "tuple", doctorComponents...)),
	view(FnGetAllDoctors, nil, tuple("", "tuple[]", doctorComponents...)),
	view(FnGetAllApprovedDoctors, nil, tuple("", "tuple[]", doctorComponents...)),

	// patient
	write(FnRegisterPatient, true, param("ipfsHash", "string")),
	view(FnGetPatientID, in(param("account", "address")), param("", "uint256")),
	view(FnGetPatientDetails, in(param("patientId", "uint256")), tuple("", "tuple", patientComponents...)),
	view(FnGetAllPatients, nil, tuple("", "tuple[]", patientComponents...)),
	write(FnUpdatePatientMedicalHistory, false, param("patientId", "uint256"), param("newMedicalHistory", "string")),

	// appointment
	write(FnBookAppointment, true, param("doctorId", "uint256"), param("from", "string"), param("to", "string"), param("appointmentDate", "string"), param("condition", "string"), param("message", "string")),
	write(FnCompleteAppointment, false, param("appointmentId", "uint256")),
	view(FnGetAllAppointments, nil, tuple("", "tuple[]", appointmentComponents...)),
	view(FnGetPatientAppointments, in(param("patientId", "uint256")), tuple("", "tuple[]", appointmentComponents...)),
	view(FnGetDoctorAppointments, in(param("doctorId", "uint256")), tuple("", "tuple[]", appointmentComponents...)),

	// prescription
	write(FnPrescribeMedicine, false, param("medicineId", "uint256"), param("patientId", "uint256"), param("date", "string")),
	view(FnGetPatientPrescriptions, in(param("patientId", "uint256")), tuple("", "tuple[]", prescriptionComponents...)),

	// order
	write(FnBuyMedicine, true, param("medicineId", "uint256"), param("quantity", "uint256")),
	view(FnGetPatientOrders, in(param("patientId", "uint256")), tuple("", "tuple[]", orderComponents...)),

	// messaging
	write(FnSendMessage, false, param("friendKey", "address"), param("msg", "string")),
	view(FnReadMessage, in(param("friendKey", "address")), tuple("", "tuple[]", messageComponents...)),
	view(FnGetMyFriendList, nil, tuple("", "tuple[]", friendComponents...)),

	// admin
	write(FnUpdateRegistrationDoctorFee, false, param("fee", "uint256")),
	write(FnUpdateRegistrationPatientFee, false, param("fee", "uint256")),
	write(FnUpdateAppointmentFee, false, param("fee", "uint256")),
	write(FnUpdateAdminAddress, false, param("newAdmin", "address")),

	// introspection
	view(FnAdmin, nil, param("", "address")),
	view(FnRegistrationDoctorFee, nil, param("", "uint256")),
	view(FnRegistrationPatientFee, nil, param("", "uint256")),
	view(FnAppointmentFee, nil, param("", "uint256")),
	view(FnDoctorCount, nil, param("", "uint256")),
	view(FnPatientCount, nil, param("", "uint256")),
	view(FnMedicineCount, nil, param("", "uint256")),
	view(FnAppointmentCount, nil, param("", "uint256")),
	view(FnPrescriptionCount, nil, param("", "uint256")),
	view(FnCheckUserExists, in(param("account", "address")), param("", "bool")),
	view(FnGetUserRole, in(param("account", "address")), param("", "string")),
}

// Contract binds the ABI to a deployed contract address
type Contract struct {
	address *ethtypes.Address0xHex
	entries map[string]*abi.Entry
}

// NewContract creates a contract binding for the given address
func NewContract(address string) (*Contract, error) {
	addr, err := ethtypes.NewAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address %q: %w", address, err)
	}

	entries := make(map[string]*abi.Entry, len(ContractABI))
	for _, e := range ContractABI {
		entries[e.Name] = e
	}

	return &Contract{address: addr, entries: entries}, nil
}

// Address returns the lower-case 0x-prefixed contract address
func (c *Contract) Address() string {
	return c.address.String()
}

// Entry returns the ABI entry of a contract function
func (c *Contract) Entry(function string) (*abi.Entry, error) {
	e, ok := c.entries[function]
	if !ok {
		return nil, fmt.Errorf("unknown contract function: %s", function)
	}
	return e, nil
}

// IsPayable reports whether the function accepts attached value
func (c *Contract) IsPayable(function string) bool {
	e, ok := c.entries[function]
	return ok && e.StateMutability == abi.Payable
}

// Selector returns the 4-byte function selector as 0x-prefixed hex
func (c *Contract) Selector(function string) (string, error) {
	e, err := c.Entry(function)
	if err != nil {
		return "", err
	}
	return e.FunctionSelectorBytes().String(), nil
}

// EncodeCall builds calldata for a function invocation
func (c *Contract) EncodeCall(function string, args ...interface{}) ([]byte, error) {
	e, err := c.Entry(function)
	if err != nil {
		return nil, err
	}
	if len(args) != len(e.Inputs) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", function, len(e.Inputs), len(args))
	}

	argsJSON, err := json.Marshal(wireArgs(args))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s arguments: %w", function, err)
	}

	data, err := e.EncodeCallDataJSON(argsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", function, err)
	}
	return data, nil
}

// DecodeOutputs decodes returned data into a JSON array with one element per output
func (c *Contract) DecodeOutputs(function string, data []byte) (json.RawMessage, error) {
	e, err := c.Entry(function)
	if err != nil {
		return nil, err
	}

	cv, err := e.Outputs.DecodeABIData(data, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", function, err)
	}

	out, err := abi.NewSerializer().
		SetFormattingMode(abi.FormatAsFlatArrays).
		SerializeJSON(cv)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s result: %w", function, err)
	}
	return out, nil
}

// wireArgs converts integers to decimal strings so no precision is lost in JSON
func wireArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *big.Int:
			out[i] = v.String()
		case uint64:
			out[i] = new(big.Int).SetUint64(v).String()
		case int64:
			out[i] = big.NewInt(v).String()
		case int:
			out[i] = big.NewInt(int64(v)).String()
		default:
			out[i] = a
		}
	}
	return out
}
