package federation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfed/healthfed/internal/domain/clinical"
	"github.com/healthfed/healthfed/internal/domain/insurance"
	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/metrics"
)

// clinicalFake serves patients and records from maps. errs injects a
// failure per method name.
type clinicalFake struct {
	mu       sync.Mutex
	patients map[int64]*clinical.Patient
	records  map[int64]*clinical.MedicalRecord
	errs     map[string]error
	calls    map[string]int
	block    map[string]bool
}

func newClinicalFake() *clinicalFake {
	return &clinicalFake{
		patients: map[int64]*clinical.Patient{},
		records:  map[int64]*clinical.MedicalRecord{},
		errs:     map[string]error{},
		calls:    map[string]int{},
		block:    map[string]bool{},
	}
}

func (f *clinicalFake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	err, block := f.errs[method], f.block[method]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return apperror.NewUnavailable("relational", ctx.Err())
	}
	return err
}

func (f *clinicalFake) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

type patientSide struct{ *clinicalFake }

func (p patientSide) GetByID(ctx context.Context, id int64) (*clinical.Patient, error) {
	if err := p.enter(ctx, "patient.get"); err != nil {
		return nil, err
	}
	pt, ok := p.patients[id]
	if !ok {
		return nil, apperror.NewNotFound("patient", id)
	}
	return pt, nil
}

type recordSide struct{ *clinicalFake }

func (r recordSide) GetByID(ctx context.Context, id int64) (*clinical.MedicalRecord, error) {
	if err := r.enter(ctx, "record.get"); err != nil {
		return nil, err
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, apperror.NewNotFound("medical_record", id)
	}
	return rec, nil
}

func (r recordSide) ListByPatient(ctx context.Context, patientID int64) ([]*clinical.MedicalRecord, error) {
	if err := r.enter(ctx, "record.list"); err != nil {
		return nil, err
	}
	var out []*clinical.MedicalRecord
	for _, rec := range r.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// insuranceFake is the graph side: policies, claims and FILED_UNDER links.
type insuranceFake struct {
	mu       sync.Mutex
	policies map[string]*insurance.Policy
	claims   map[string]*insurance.Claim
	links    map[string]string // claim id -> policy id
	errs     map[string]error
	calls    map[string]int
	block    map[string]bool
}

func newInsuranceFake() *insuranceFake {
	return &insuranceFake{
		policies: map[string]*insurance.Policy{},
		claims:   map[string]*insurance.Claim{},
		links:    map[string]string{},
		errs:     map[string]error{},
		calls:    map[string]int{},
		block:    map[string]bool{},
	}
}

func (f *insuranceFake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	err, block := f.errs[method], f.block[method]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return apperror.NewUnavailable("graph", ctx.Err())
	}
	return err
}

func (f *insuranceFake) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *insuranceFake) file(c *insurance.Claim) {
	f.claims[c.ClaimID] = c
	f.links[c.ClaimID] = c.PolicyID
}

type policySide struct{ *insuranceFake }

func (p policySide) ListByPatient(ctx context.Context, patientID int64) ([]*insurance.Policy, error) {
	if err := p.enter(ctx, "policy.list"); err != nil {
		return nil, err
	}
	var out []*insurance.Policy
	for _, pol := range p.policies {
		if pol.PatientID == patientID {
			out = append(out, pol)
		}
	}
	return out, nil
}

func (p policySide) GetByClaim(ctx context.Context, claimID string) (*insurance.Policy, error) {
	if err := p.enter(ctx, "policy.by_claim"); err != nil {
		return nil, err
	}
	pol, ok := p.policies[p.links[claimID]]
	if !ok {
		return nil, apperror.NewNotFound("insurance_policy", "for claim "+claimID)
	}
	return pol, nil
}

type claimSide struct{ *insuranceFake }

func (c claimSide) GetByID(ctx context.Context, claimID string) (*insurance.Claim, error) {
	if err := c.enter(ctx, "claim.get"); err != nil {
		return nil, err
	}
	cl, ok := c.claims[claimID]
	if !ok {
		return nil, apperror.NewNotFound("claim", claimID)
	}
	return cl, nil
}

func (c claimSide) ListByPatient(ctx context.Context, patientID int64) ([]*insurance.Claim, error) {
	if err := c.enter(ctx, "claim.list"); err != nil {
		return nil, err
	}
	var out []*insurance.Claim
	for id, cl := range c.claims {
		if pol, ok := c.policies[c.links[id]]; ok && pol.PatientID == patientID {
			out = append(out, cl)
		}
	}
	return out, nil
}

type fixture struct {
	clinical  *clinicalFake
	insurance *insuranceFake
	metrics   *metrics.Metrics
	resolver  *Resolver
}

func newFixture() *fixture {
	cf, inf, m := newClinicalFake(), newInsuranceFake(), metrics.New()
	return &fixture{
		clinical:  cf,
		insurance: inf,
		metrics:   m,
		resolver: NewResolver(patientSide{cf}, recordSide{cf}, policySide{inf}, claimSide{inf},
			Options{Logger: zerolog.Nop(), Metrics: m}),
	}
}

func (f *fixture) graphCalls() int {
	return f.insurance.count("policy.list") + f.insurance.count("claim.list") +
		f.insurance.count("policy.by_claim") + f.insurance.count("claim.get")
}

func (f *fixture) failures(view, stage string, kind apperror.Kind) float64 {
	return testutil.ToFloat64(f.metrics.FederationFailures.WithLabelValues(view, stage, kind.String()))
}

// seed loads patient 1041 with record 5001, policy POL001 and claim CLM001.
func (f *fixture) seed() {
	f.clinical.patients[1041] = &clinical.Patient{PatientID: 1041, FirstName: "John", LastName: "Smith", DateOfBirth: "1980-01-15"}
	f.clinical.records[5001] = &clinical.MedicalRecord{RecordID: 5001, PatientID: 1041, DoctorID: 1, Diagnosis: "Hypertension", RecordDate: "2023-03-15"}
	f.insurance.policies["POL001"] = &insurance.Policy{PolicyID: "POL001", PatientID: 1041, Provider: "Blue Cross", CoverageDetails: map[string]interface{}{}}
	f.insurance.file(&insurance.Claim{ClaimID: "CLM001", PolicyID: "POL001", RecordID: 5001, Amount: 250, Status: "Pending"})
}

func assertStage(t *testing.T, err error, kind apperror.Kind, stage string) {
	t.Helper()
	var ae *apperror.Error
	require.True(t, errors.As(err, &ae), "expected *apperror.Error, got %v", err)
	assert.Equal(t, kind, ae.Kind)
	assert.Equal(t, stage, ae.Stage)
}

// -- CompletePatient --

func TestCompletePatient_Full(t *testing.T) {
	f := newFixture()
	f.seed()

	view, err := f.resolver.CompletePatient(context.Background(), 1041)
	require.NoError(t, err)
	assert.Equal(t, "John", view.Patient.FirstName)
	require.Len(t, view.MedicalRecords, 1)
	require.Len(t, view.InsurancePolicies, 1)
	require.Len(t, view.Claims, 1)
	assert.Equal(t, "CLM001", view.Claims[0].ClaimID)
}

func TestCompletePatient_EmptyCollectionsNotNil(t *testing.T) {
	f := newFixture()
	f.clinical.patients[7] = &clinical.Patient{PatientID: 7, FirstName: "Lone"}

	view, err := f.resolver.CompletePatient(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, view.MedicalRecords)
	assert.NotNil(t, view.InsurancePolicies)
	assert.NotNil(t, view.Claims)
	assert.Empty(t, view.MedicalRecords)
	assert.Empty(t, view.InsurancePolicies)
	assert.Empty(t, view.Claims)
}

func TestCompletePatient_UnknownPatientNeverTouchesGraph(t *testing.T) {
	f := newFixture()
	f.seed()
	// Graph data for a patient missing from the clinical store.
	f.insurance.policies["POL999"] = &insurance.Policy{PolicyID: "POL999", PatientID: 999}

	_, err := f.resolver.CompletePatient(context.Background(), 999)
	assertStage(t, err, apperror.NotFound, StagePatient)
	assert.Zero(t, f.graphCalls())
	assert.Zero(t, f.clinical.count("record.list"))
	assert.Equal(t, 1.0, f.failures(ViewPatient, StagePatient, apperror.NotFound))
}

func TestCompletePatient_RelationalUnavailable(t *testing.T) {
	f := newFixture()
	f.clinical.errs["patient.get"] = apperror.NewUnavailable("relational", errors.New("dial tcp: refused"))

	_, err := f.resolver.CompletePatient(context.Background(), 1041)
	assertStage(t, err, apperror.StoreUnavailable, StagePatient)
	assert.False(t, apperror.IsNotFound(err))
}

func TestCompletePatient_GraphUnavailablePropagates(t *testing.T) {
	f := newFixture()
	f.seed()
	f.insurance.errs["policy.list"] = apperror.NewUnavailable("graph", errors.New("connection reset"))

	view, err := f.resolver.CompletePatient(context.Background(), 1041)
	assert.Nil(t, view)
	assertStage(t, err, apperror.StoreUnavailable, StageInsurancePolicies)
	assert.Equal(t, 1.0, f.failures(ViewPatient, StageInsurancePolicies, apperror.StoreUnavailable))
}

func TestCompletePatient_UnclassifiedBranchErrorStaysUnclassified(t *testing.T) {
	f := newFixture()
	f.seed()
	cause := errors.New("decode coverage_details: invalid character")
	f.insurance.errs["policy.list"] = cause

	_, err := f.resolver.CompletePatient(context.Background(), 1041)
	assertStage(t, err, 0, StageInsurancePolicies)
	assert.ErrorIs(t, err, cause)
	assert.False(t, apperror.IsStoreUnavailable(err))
	assert.Equal(t, 1.0, f.failures(ViewPatient, StageInsurancePolicies, 0))
}

func TestCompletePatient_FailingBranchCancelsSiblings(t *testing.T) {
	f := newFixture()
	f.seed()
	f.clinical.block["record.list"] = true
	f.insurance.block["claim.list"] = true
	f.insurance.errs["policy.list"] = apperror.NewUnavailable("graph", errors.New("down"))

	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.CompletePatient(context.Background(), 1041)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, apperror.IsStoreUnavailable(err))
	case <-time.After(2 * time.Second):
		t.Fatal("blocked branches were not cancelled")
	}
}

func TestCompletePatient_BranchesRunConcurrently(t *testing.T) {
	f := newFixture()
	f.seed()

	var inFlight, peak int32
	gate := make(chan struct{})
	track := func() {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == 3 {
			close(gate)
		}
		select {
		case <-gate:
		case <-time.After(2 * time.Second):
		}
		atomic.AddInt32(&inFlight, -1)
	}

	r := NewResolver(patientSide{f.clinical},
		trackedRecords{recordSide{f.clinical}, track},
		trackedPolicies{policySide{f.insurance}, track},
		trackedClaims{claimSide{f.insurance}, track},
		Options{Logger: zerolog.Nop()})

	_, err := r.CompletePatient(context.Background(), 1041)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

type trackedRecords struct {
	recordSide
	track func()
}

func (t trackedRecords) ListByPatient(ctx context.Context, id int64) ([]*clinical.MedicalRecord, error) {
	t.track()
	return t.recordSide.ListByPatient(ctx, id)
}

type trackedPolicies struct {
	policySide
	track func()
}

func (t trackedPolicies) ListByPatient(ctx context.Context, id int64) ([]*insurance.Policy, error) {
	t.track()
	return t.policySide.ListByPatient(ctx, id)
}

type trackedClaims struct {
	claimSide
	track func()
}

func (t trackedClaims) ListByPatient(ctx context.Context, id int64) ([]*insurance.Claim, error) {
	t.track()
	return t.claimSide.ListByPatient(ctx, id)
}

// -- CompleteClaim --

func TestCompleteClaim_Full(t *testing.T) {
	f := newFixture()
	f.seed()

	view, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	require.NoError(t, err)
	assert.Equal(t, "CLM001", view.Claim.ClaimID)
	assert.Equal(t, "POL001", view.Policy.PolicyID)
	assert.Equal(t, int64(5001), view.MedicalRecord.RecordID)
	assert.Equal(t, int64(1041), view.Patient.PatientID)
}

func TestCompleteClaim_UnknownClaim(t *testing.T) {
	f := newFixture()
	f.seed()

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM404")
	assertStage(t, err, apperror.NotFound, StageClaim)
	assert.Zero(t, f.insurance.count("policy.by_claim"))
}

func TestCompleteClaim_PolicyLinkGone(t *testing.T) {
	f := newFixture()
	f.seed()
	delete(f.insurance.links, "CLM001")

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	assertStage(t, err, apperror.BrokenLink, StagePolicy)
	assert.Zero(t, f.clinical.count("record.get"), "record lookup must not be issued")
	assert.Zero(t, f.clinical.count("patient.get"), "patient lookup must not be issued")
	assert.Equal(t, 1.0, f.failures(ViewClaim, StagePolicy, apperror.BrokenLink))
}

func TestCompleteClaim_MedicalRecordMissing(t *testing.T) {
	f := newFixture()
	f.seed()
	delete(f.clinical.records, 5001)

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	assertStage(t, err, apperror.BrokenLink, StageMedicalRecord)
	assert.Zero(t, f.clinical.count("patient.get"))
}

func TestCompleteClaim_PatientMissing(t *testing.T) {
	tests := []struct {
		name  string
		claim *insurance.Claim
	}{
		{"minimal claim", &insurance.Claim{ClaimID: "CLM001", PolicyID: "POL001", RecordID: 5001}},
		{"approved claim", &insurance.Claim{ClaimID: "CLM001", PolicyID: "POL001", RecordID: 5001, Amount: 150.00, Status: "Approved"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.clinical.records[5001] = &clinical.MedicalRecord{RecordID: 5001, PatientID: 1041}
			f.insurance.policies["POL001"] = &insurance.Policy{PolicyID: "POL001", PatientID: 1041}
			f.insurance.file(tt.claim)

			_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
			assertStage(t, err, apperror.BrokenLink, StagePatient)
			assert.Equal(t, "associated patient not found", err.(*apperror.Error).Detail())
			assert.Equal(t, 1, f.clinical.count("patient.get"))
		})
	}
}

func TestCompleteClaim_UnclassifiedPolicyErrorStaysUnclassified(t *testing.T) {
	f := newFixture()
	f.seed()
	cause := errors.New("decode coverage_details: invalid character")
	f.insurance.errs["policy.by_claim"] = cause

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	assertStage(t, err, 0, StagePolicy)
	assert.ErrorIs(t, err, cause)
	assert.False(t, apperror.IsBrokenLink(err))
	assert.Zero(t, f.clinical.count("record.get"))
}

func TestCompleteClaim_StoreUnavailableIsNotBrokenLink(t *testing.T) {
	f := newFixture()
	f.seed()
	f.clinical.errs["record.get"] = apperror.NewUnavailable("relational", context.DeadlineExceeded)

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	assertStage(t, err, apperror.StoreUnavailable, StageMedicalRecord)
	assert.False(t, apperror.IsBrokenLink(err))
}

func TestCompleteClaim_Sequential(t *testing.T) {
	f := newFixture()
	f.seed()

	_, err := f.resolver.CompleteClaim(context.Background(), "CLM001")
	require.NoError(t, err)
	for _, method := range []string{"claim.get", "policy.by_claim"} {
		assert.Equal(t, 1, f.insurance.count(method), method)
	}
	for _, method := range []string{"record.get", "patient.get"} {
		assert.Equal(t, 1, f.clinical.count(method), method)
	}
}
