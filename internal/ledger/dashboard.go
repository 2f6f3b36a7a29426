package ledger

import (
	"context"
	"sync"

	"github.com/medrex/medledger/pkg/types"
)

// PartialFailure marks a sub-query of a batch that failed and rendered empty
type PartialFailure struct {
	Query   Query           `json:"query"`
	Kind    types.ErrorKind `json:"kind,omitempty"`
	Message string          `json:"message"`
}

// Section is the result of one query inside a batch
type Section struct {
	Query   Query           `json:"query"`
	Records interface{}     `json:"records"`
	Failure *PartialFailure `json:"failure,omitempty"`
}

// Failed reports whether the section fell back to an empty result
func (s Section) Failed() bool {
	return s.Failure != nil
}

// Dashboard holds the four collection queries a dashboard renders from,
// plus the contract snapshot and any partial failures
type Dashboard struct {
	Medicines       []types.Medicine    `json:"medicines"`
	ApprovedDoctors []types.Doctor      `json:"approved_doctors"`
	Patients        []types.Patient     `json:"patients"`
	Appointments    []types.Appointment `json:"appointments"`
	Contract        *types.ContractInfo `json:"contract,omitempty"`
	Failures        []PartialFailure    `json:"failures,omitempty"`
}

// DashboardQueries are the queries Dashboard issues
var DashboardQueries = []Query{
	{Kind: QueryMedicines},
	{Kind: QueryApprovedDoctors},
	{Kind: QueryPatients},
	{Kind: QueryAppointments},
	{Kind: QueryContractInfo},
}

// Read runs one query, degrading a failure to an empty result
func (g *ReadGateway) Read(ctx context.Context, q Query) Section {
	records, err := g.ReadAll(ctx, q)
	if err == nil {
		return Section{Query: q, Records: records}
	}

	g.logger.PartialFailure(ctx, q.String(), err)
	g.metrics.RecordPartialFailure(string(q.Kind))
	return Section{
		Query:   q,
		Records: emptyRecords(q.Kind),
		Failure: &PartialFailure{
			Query:   q,
			Kind:    types.KindOf(err),
			Message: err.Error(),
		},
	}
}

// Batch issues every query concurrently and returns once all of them have
// resolved. Sections come back in the order the queries were given.
func (g *ReadGateway) Batch(ctx context.Context, queries ...Query) []Section {
	sections := make([]Section, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q Query) {
			defer wg.Done()
			sections[i] = g.Read(ctx, q)
		}(i, q)
	}
	wg.Wait()

	return sections
}

// Dashboard reads the dashboard collections in parallel. It never fails:
// a failed query leaves its section empty and is listed in Failures.
func (g *ReadGateway) Dashboard(ctx context.Context) *Dashboard {
	d := &Dashboard{}
	for _, s := range g.Batch(ctx, DashboardQueries...) {
		if s.Failure != nil {
			d.Failures = append(d.Failures, *s.Failure)
		}
		switch s.Query.Kind {
		case QueryMedicines:
			d.Medicines = s.Records.([]types.Medicine)
		case QueryApprovedDoctors:
			d.ApprovedDoctors = s.Records.([]types.Doctor)
		case QueryPatients:
			d.Patients = s.Records.([]types.Patient)
		case QueryAppointments:
			d.Appointments = s.Records.([]types.Appointment)
		case QueryContractInfo:
			if info, ok := s.Records.(*types.ContractInfo); ok {
				d.Contract = info
			}
		}
	}
	return d
}

func emptyRecords(kind QueryKind) interface{} {
	switch kind {
	case QueryMedicines:
		return []types.Medicine{}
	case QueryDoctors, QueryApprovedDoctors:
		return []types.Doctor{}
	case QueryPatients:
		return []types.Patient{}
	case QueryAppointments, QueryPatientAppointments, QueryDoctorAppointments:
		return []types.Appointment{}
	case QueryPatientPrescriptions:
		return []types.Prescription{}
	case QueryPatientOrders:
		return []types.Order{}
	case QueryMedicalHistory:
		return []string{}
	case QueryFriends:
		return []types.Friend{}
	case QueryMessages:
		return []types.Message{}
	default:
		return nil
	}
}
