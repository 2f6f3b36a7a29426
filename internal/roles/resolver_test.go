package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockReader is a mock implementation of Reader
type MockReader struct {
	mock.Mock
}

func (m *MockReader) UserExists(ctx context.Context, address string) (bool, error) {
	args := m.Called(address)
	return args.Bool(0), args.Error(1)
}

func (m *MockReader) UserRole(ctx context.Context, address string) (string, error) {
	args := m.Called(address)
	return args.String(0), args.Error(1)
}

func (m *MockReader) Admin(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockReader) DoctorID(ctx context.Context, address string) (uint64, error) {
	args := m.Called(address)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockReader) PatientID(ctx context.Context, address string) (uint64, error) {
	args := m.Called(address)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockReader) Doctor(ctx context.Context, id uint64) (*types.Doctor, error) {
	args := m.Called(id)
	doc, _ := args.Get(0).(*types.Doctor)
	return doc, args.Error(1)
}

const (
	adminMixed = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	adminLower = "0xabcdef0123456789abcdef0123456789abcdef01"
	doctorAddr = "0x00000000000000000000000000000000000000d4"
	patientAdr = "0x00000000000000000000000000000000000000a1"
)

func setupTestResolver() (*Resolver, *MockReader) {
	reader := &MockReader{}
	return NewResolver(reader, logger.NewDiscard()), reader
}

func TestResolve_AdminMatchesCaseInsensitively(t *testing.T) {
	r, reader := setupTestResolver()
	reader.On("UserExists", adminLower).Return(true, nil)
	reader.On("UserRole", adminLower).Return("admin", nil)
	reader.On("Admin").Return(adminMixed, nil)

	role := r.Resolve(context.Background(), "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	assert.Equal(t, types.RoleAdmin, role.Kind)
	assert.True(t, role.IsAdmin())
	assert.Equal(t, adminLower, role.Address)
}

func TestResolve_UnregisteredAdminIsAdmin(t *testing.T) {
	r, reader := setupTestResolver()
	reader.On("UserExists", adminLower).Return(false, nil)
	reader.On("Admin").Return(adminMixed, nil)

	role := r.Resolve(context.Background(), adminMixed)
	assert.Equal(t, types.RoleAdmin, role.Kind)
}

func TestResolve_AdminTagWithoutMatchingAddressIsNone(t *testing.T) {
	r, reader := setupTestResolver()
	reader.On("UserExists", patientAdr).Return(true, nil)
	reader.On("UserRole", patientAdr).Return("admin", nil)
	reader.On("Admin").Return(adminMixed, nil)

	role := r.Resolve(context.Background(), patientAdr)
	assert.Equal(t, types.RoleNone, role.Kind)
}

func TestResolve_UnregisteredIsNone(t *testing.T) {
	r, reader := setupTestResolver()
	reader.On("UserExists", patientAdr).Return(false, nil)
	reader.On("Admin").Return(adminMixed, nil)

	role := r.Resolve(context.Background(), patientAdr)
	assert.Equal(t, types.RoleNone, role.Kind)
	reader.AssertNotCalled(t, "UserRole", mock.Anything)
}

func TestResolve_Doctor(t *testing.T) {
	cases := []struct {
		name     string
		approved bool
	}{
		{"approved", true},
		{"pending approval", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, reader := setupTestResolver()
			reader.On("UserExists", doctorAddr).Return(true, nil)
			reader.On("UserRole", doctorAddr).Return("doctor", nil)
			reader.On("DoctorID", doctorAddr).Return(uint64(4), nil)
			reader.On("Doctor", uint64(4)).Return(&types.Doctor{ID: 4, Address: doctorAddr, Approved: tc.approved}, nil)

			role := r.Resolve(context.Background(), doctorAddr)
			assert.Equal(t, types.RoleDoctor, role.Kind)
			assert.Equal(t, uint64(4), role.ID)
			assert.Equal(t, tc.approved, role.Approved)
			assert.Equal(t, tc.approved, role.IsApprovedDoctor())
		})
	}
}

func TestResolve_Patient(t *testing.T) {
	r, reader := setupTestResolver()
	reader.On("UserExists", patientAdr).Return(true, nil)
	reader.On("UserRole", patientAdr).Return("Patient", nil)
	reader.On("PatientID", patientAdr).Return(uint64(9), nil)

	role := r.Resolve(context.Background(), patientAdr)
	assert.Equal(t, types.RolePatient, role.Kind)
	assert.Equal(t, uint64(9), role.ID)
	assert.True(t, role.IsPatient())
}

func TestResolve_FailuresDegradeToNone(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("exists read fails", func(t *testing.T) {
		r, reader := setupTestResolver()
		reader.On("UserExists", patientAdr).Return(false, boom)
		assert.Equal(t, types.RoleNone, r.Resolve(context.Background(), patientAdr).Kind)
	})

	t.Run("role read fails", func(t *testing.T) {
		r, reader := setupTestResolver()
		reader.On("UserExists", patientAdr).Return(true, nil)
		reader.On("UserRole", patientAdr).Return("", boom)
		assert.Equal(t, types.RoleNone, r.Resolve(context.Background(), patientAdr).Kind)
	})

	t.Run("admin read fails", func(t *testing.T) {
		r, reader := setupTestResolver()
		reader.On("UserExists", adminLower).Return(true, nil)
		reader.On("UserRole", adminLower).Return("admin", nil)
		reader.On("Admin").Return("", boom)
		assert.Equal(t, types.RoleNone, r.Resolve(context.Background(), adminLower).Kind)
	})

	t.Run("doctor details fail", func(t *testing.T) {
		r, reader := setupTestResolver()
		reader.On("UserExists", doctorAddr).Return(true, nil)
		reader.On("UserRole", doctorAddr).Return("doctor", nil)
		reader.On("DoctorID", doctorAddr).Return(uint64(4), nil)
		reader.On("Doctor", uint64(4)).Return(nil, boom)
		assert.Equal(t, types.RoleNone, r.Resolve(context.Background(), doctorAddr).Kind)
	})
}

func TestResolve_InvalidAddressIsNoneWithoutReads(t *testing.T) {
	r, reader := setupTestResolver()

	for _, addr := range []string{"", "   ", "0x123", "not-an-address"} {
		assert.Equal(t, types.RoleNone, r.Resolve(context.Background(), addr).Kind)
	}
	reader.AssertExpectations(t)
	assert.Empty(t, reader.Calls)
}
