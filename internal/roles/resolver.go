package roles

import (
	"context"
	"strings"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/types"
)

// Reader is the slice of the read gateway role resolution needs
type Reader interface {
	UserExists(ctx context.Context, address string) (bool, error)
	UserRole(ctx context.Context, address string) (string, error)
	Admin(ctx context.Context) (string, error)
	DoctorID(ctx context.Context, address string) (uint64, error)
	PatientID(ctx context.Context, address string) (uint64, error)
	Doctor(ctx context.Context, id uint64) (*types.Doctor, error)
}

// Resolver determines the role of a connected account
type Resolver struct {
	reader Reader
	logger *logger.Logger
}

// NewResolver creates a new role resolver
func NewResolver(reader Reader, log *logger.Logger) *Resolver {
	return &Resolver{
		reader: reader,
		logger: log,
	}
}

// Resolve returns the role held by address. Role resolution gates routing
// and must not block it, so any failed read resolves to RoleNone.
func (r *Resolver) Resolve(ctx context.Context, address string) types.Role {
	none := types.Role{Kind: types.RoleNone, Address: address}

	addr, ok := normalize(address)
	if !ok {
		return none
	}
	none.Address = addr

	exists, err := r.reader.UserExists(ctx, addr)
	if err != nil {
		r.degraded(ctx, addr, "checkUserExists", err)
		return none
	}

	if !exists {
		// the administrator does not need to register
		if r.isAdmin(ctx, addr) {
			return types.Role{Kind: types.RoleAdmin, Address: addr}
		}
		return none
	}

	tag, err := r.reader.UserRole(ctx, addr)
	if err != nil {
		r.degraded(ctx, addr, "getUserRole", err)
		return none
	}

	switch types.ParseRoleTag(strings.TrimSpace(tag)) {
	case types.RoleAdmin:
		if r.isAdmin(ctx, addr) {
			return types.Role{Kind: types.RoleAdmin, Address: addr}
		}
		return none

	case types.RoleDoctor:
		id, err := r.reader.DoctorID(ctx, addr)
		if err != nil || id == 0 {
			r.degraded(ctx, addr, "getDoctorId", err)
			return none
		}
		doc, err := r.reader.Doctor(ctx, id)
		if err != nil || doc == nil {
			r.degraded(ctx, addr, "getDoctorDetails", err)
			return none
		}
		return types.Role{Kind: types.RoleDoctor, Address: addr, ID: id, Approved: doc.Approved}

	case types.RolePatient:
		id, err := r.reader.PatientID(ctx, addr)
		if err != nil || id == 0 {
			r.degraded(ctx, addr, "getPatientId", err)
			return none
		}
		return types.Role{Kind: types.RolePatient, Address: addr, ID: id}

	default:
		if r.isAdmin(ctx, addr) {
			return types.Role{Kind: types.RoleAdmin, Address: addr}
		}
		return none
	}
}

func (r *Resolver) isAdmin(ctx context.Context, addr string) bool {
	admin, err := r.reader.Admin(ctx)
	if err != nil {
		r.degraded(ctx, addr, "admin", err)
		return false
	}
	return types.SameAddress(admin, addr)
}

func (r *Resolver) degraded(ctx context.Context, addr, step string, err error) {
	entry := r.logger.WithContext(ctx).WithField("address", addr).WithField("step", step)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Role resolution degraded to none")
}

// normalize validates an account address and returns its lower-case hex form
func normalize(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", false
	}
	addr, err := ethtypes.NewAddress(address)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
