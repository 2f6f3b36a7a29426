package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/medrex/medledger/pkg/types"
)

// Contract results reach us in more than one shape depending on the node and
// serializer: integers as JSON numbers, decimal strings or 0x hex; booleans as
// true, "true", 1 or "0x1"; tuples as positional arrays or keyed objects.
// Everything below accepts all of them.

// decodeOutputs parses a returned output array keeping numbers exact
func decodeOutputs(raw json.RawMessage) ([]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed contract result: %w", err)
	}
	switch out := v.(type) {
	case []interface{}:
		return out, nil
	case nil:
		return nil, nil
	default:
		return []interface{}{out}, nil
	}
}

// firstOutput returns the single declared output of a call
func firstOutput(raw json.RawMessage) (interface{}, error) {
	outs, err := decodeOutputs(raw)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("contract result has no outputs")
	}
	return outs[0], nil
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case json.Number:
		return parseBigInt(n.String())
	case string:
		return parseBigInt(n)
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return nil, fmt.Errorf("not an unsigned integer: %v", n)
		}
		return new(big.Int).SetUint64(uint64(n)), nil
	case nil:
		return nil, fmt.Errorf("missing integer")
	default:
		return nil, fmt.Errorf("unexpected integer type %T", v)
	}
}

func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		base = 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("not an unsigned integer: %q", s)
	}
	return n, nil
}

func toUint64(v interface{}) (uint64, error) {
	n, err := toBigInt(v)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("integer %s overflows uint64", n)
	}
	return n.Uint64(), nil
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "0x1", "0x01":
			return true, nil
		case "false", "0", "0x0", "0x00", "":
			return false, nil
		}
	case json.Number:
		switch b.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	case float64:
		if b == 1 {
			return true, nil
		}
		if b == 0 {
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean: %v", v)
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("not a string: %T", v)
	}
}

func toStrings(v interface{}) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not a string array: %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := toString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// row gives uniform access to a tuple encoded either positionally or by name
type row struct {
	arr []interface{}
	obj map[string]interface{}
	err error
}

func newRow(v interface{}) (*row, error) {
	switch t := v.(type) {
	case []interface{}:
		return &row{arr: t}, nil
	case map[string]interface{}:
		return &row{obj: t}, nil
	default:
		return nil, fmt.Errorf("not a tuple: %T", v)
	}
}

func (r *row) get(i int, names ...string) interface{} {
	if r.arr != nil {
		if i < len(r.arr) {
			return r.arr[i]
		}
		r.fail(fmt.Errorf("tuple has %d fields, need field %d", len(r.arr), i+1))
		return nil
	}
	for _, name := range names {
		if v, ok := r.obj[name]; ok {
			return v
		}
	}
	r.fail(fmt.Errorf("tuple missing field %s", names[0]))
	return nil
}

func (r *row) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *row) uint(i int, names ...string) uint64 {
	n, err := toUint64(r.get(i, names...))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", names[0], err))
	}
	return n
}

func (r *row) bigInt(i int, names ...string) *big.Int {
	n, err := toBigInt(r.get(i, names...))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", names[0], err))
		return new(big.Int)
	}
	return n
}

func (r *row) bool(i int, names ...string) bool {
	b, err := toBool(r.get(i, names...))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", names[0], err))
	}
	return b
}

func (r *row) str(i int, names ...string) string {
	s, err := toString(r.get(i, names...))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", names[0], err))
	}
	return s
}

func (r *row) strs(i int, names ...string) []string {
	s, err := toStrings(r.get(i, names...))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", names[0], err))
	}
	return s
}

func medicineFromRow(r *row) (types.Medicine, error) {
	m := types.Medicine{
		ID:              r.uint(0, "id"),
		MetadataRef:     r.str(1, "ipfsHash", "metadata_ref"),
		PriceWei:        r.bigInt(2, "price"),
		Quantity:        r.uint(3, "quantity"),
		DiscountPercent: r.uint(4, "discount"),
		Location:        r.str(5, "currentLocation", "location"),
		Active:          r.bool(6, "isActive", "active"),
	}
	return m, r.err
}

func doctorFromRow(r *row) (types.Doctor, error) {
	d := types.Doctor{
		ID:                       r.uint(0, "id"),
		Address:                  r.str(1, "accountAddress", "address"),
		MetadataRef:              r.str(2, "ipfsHash", "metadata_ref"),
		Approved:                 r.bool(3, "isApproved", "approved"),
		AppointmentCount:         r.uint(4, "appointmentCount"),
		SuccessfulTreatmentCount: r.uint(5, "successfulTreatmentCount"),
	}
	return d, r.err
}

func patientFromRow(r *row) (types.Patient, error) {
	p := types.Patient{
		ID:             r.uint(0, "id"),
		Address:        r.str(1, "accountAddress", "address"),
		MetadataRef:    r.str(2, "ipfsHash", "metadata_ref"),
		MedicalHistory: r.strs(3, "medicalHistory", "medical_history"),
	}
	return p, r.err
}

func appointmentFromRow(r *row) (types.Appointment, error) {
	a := types.Appointment{
		ID:        r.uint(0, "id"),
		PatientID: r.uint(1, "patientId"),
		DoctorID:  r.uint(2, "doctorId"),
		From:      r.str(3, "from"),
		To:        r.str(4, "to"),
		Date:      r.str(5, "appointmentDate", "date"),
		Condition: r.str(6, "condition"),
		Message:   r.str(7, "message"),
		Open:      r.bool(8, "isOpen", "is_open"),
	}
	return a, r.err
}

func prescriptionFromRow(r *row) (types.Prescription, error) {
	p := types.Prescription{
		ID:         r.uint(0, "id"),
		MedicineID: r.uint(1, "medicineId"),
		DoctorID:   r.uint(2, "doctorId"),
		PatientID:  r.uint(3, "patientId"),
		Date:       r.str(4, "date"),
	}
	return p, r.err
}

func orderFromRow(r *row) (types.Order, error) {
	o := types.Order{
		MedicineID:   r.uint(0, "medicineId"),
		PatientID:    r.uint(1, "patientId"),
		Quantity:     r.uint(2, "quantity"),
		PayAmountWei: r.bigInt(3, "payAmount"),
		Date:         r.str(4, "date"),
	}
	return o, r.err
}

func messageFromRow(r *row) (types.Message, error) {
	m := types.Message{
		Sender:    r.str(0, "sender"),
		Timestamp: r.uint(1, "timestamp"),
		Text:      r.str(2, "msg", "text"),
	}
	return m, r.err
}

func friendFromRow(r *row) (types.Friend, error) {
	f := types.Friend{
		Address: r.str(0, "pubkey", "address"),
		Name:    r.str(1, "name"),
	}
	return f, r.err
}

// decodeRows converts a list output into records. Rows that do not convert
// are skipped and counted so one bad record cannot hide the rest.
func decodeRows[T any](raw json.RawMessage, convert func(*row) (T, error)) ([]T, int, error) {
	out, err := firstOutput(raw)
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		return []T{}, 0, nil
	}
	items, ok := out.([]interface{})
	if !ok {
		return nil, 0, fmt.Errorf("expected a list result, got %T", out)
	}

	records := make([]T, 0, len(items))
	skipped := 0
	for _, item := range items {
		r, err := newRow(item)
		if err != nil {
			skipped++
			continue
		}
		rec, err := convert(r)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// decodeSingle converts a single tuple output
func decodeSingle[T any](raw json.RawMessage, convert func(*row) (T, error)) (T, error) {
	var zero T
	out, err := firstOutput(raw)
	if err != nil {
		return zero, err
	}
	r, err := newRow(out)
	if err != nil {
		return zero, err
	}
	return convert(r)
}

func decodeUint(raw json.RawMessage) (uint64, error) {
	out, err := firstOutput(raw)
	if err != nil {
		return 0, err
	}
	return toUint64(out)
}

func decodeBigInt(raw json.RawMessage) (*big.Int, error) {
	out, err := firstOutput(raw)
	if err != nil {
		return nil, err
	}
	return toBigInt(out)
}

func decodeBool(raw json.RawMessage) (bool, error) {
	out, err := firstOutput(raw)
	if err != nil {
		return false, err
	}
	return toBool(out)
}

func decodeString(raw json.RawMessage) (string, error) {
	out, err := firstOutput(raw)
	if err != nil {
		return "", err
	}
	return toString(out)
}
