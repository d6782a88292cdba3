package insurance

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

// -- Mock Policy Repository --

type mockPolicyRepo struct {
	policies map[string]*Policy
	claims   *mockClaimRepo
}

func newMockPolicyRepo(claims *mockClaimRepo) *mockPolicyRepo {
	return &mockPolicyRepo{policies: make(map[string]*Policy), claims: claims}
}

func (m *mockPolicyRepo) Create(_ context.Context, p *Policy) error {
	if _, ok := m.policies[p.PolicyID]; ok {
		return apperror.NewValidation("insurance_policy", "insurance policy "+p.PolicyID+" already exists", nil)
	}
	cp := *p
	m.policies[p.PolicyID] = &cp
	return nil
}

func (m *mockPolicyRepo) GetByID(_ context.Context, id string) (*Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, apperror.NewNotFound("insurance_policy", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPolicyRepo) Update(_ context.Context, p *Policy) error {
	if _, ok := m.policies[p.PolicyID]; !ok {
		return apperror.NewNotFound("insurance_policy", p.PolicyID)
	}
	cp := *p
	m.policies[p.PolicyID] = &cp
	return nil
}

func (m *mockPolicyRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.policies[id]; !ok {
		return apperror.NewNotFound("insurance_policy", id)
	}
	for cid, c := range m.claims.claims {
		if c.PolicyID == id {
			delete(m.claims.claims, cid)
		}
	}
	delete(m.policies, id)
	return nil
}

func (m *mockPolicyRepo) List(_ context.Context, limit, offset int) ([]*Policy, int, error) {
	result := make([]*Policy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PolicyID < result[j].PolicyID })
	return result, len(result), nil
}

func (m *mockPolicyRepo) ListByPatient(_ context.Context, patientID int64) ([]*Policy, error) {
	result := []*Policy{}
	for _, p := range m.policies {
		if p.PatientID == patientID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockPolicyRepo) GetByClaim(_ context.Context, claimID string) (*Policy, error) {
	c, ok := m.claims.claims[claimID]
	if !ok {
		return nil, apperror.NewNotFound("insurance_policy", "for claim "+claimID)
	}
	return m.GetByID(context.Background(), c.PolicyID)
}

// -- Mock Claim Repository --

type mockClaimRepo struct {
	claims   map[string]*Claim
	policies *mockPolicyRepo
	seq      int
}

func (m *mockClaimRepo) Create(_ context.Context, c *Claim) error {
	if _, ok := m.policies.policies[c.PolicyID]; !ok {
		return apperror.NewValidation("claim", "insurance policy "+c.PolicyID+" does not exist", nil)
	}
	if c.ClaimID == "" {
		m.seq++
		c.ClaimID = fmt.Sprintf("CLM%03d", m.seq)
	}
	cp := *c
	m.claims[c.ClaimID] = &cp
	return nil
}

func (m *mockClaimRepo) GetByID(_ context.Context, id string) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, apperror.NewNotFound("claim", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaimRepo) Update(_ context.Context, c *Claim) error {
	if _, ok := m.claims[c.ClaimID]; !ok {
		return apperror.NewNotFound("claim", c.ClaimID)
	}
	cp := *c
	m.claims[c.ClaimID] = &cp
	return nil
}

func (m *mockClaimRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.claims[id]; !ok {
		return apperror.NewNotFound("claim", id)
	}
	delete(m.claims, id)
	return nil
}

func (m *mockClaimRepo) List(_ context.Context, limit, offset int) ([]*Claim, int, error) {
	var result []*Claim
	for _, c := range m.claims {
		result = append(result, c)
	}
	return result, len(result), nil
}

func (m *mockClaimRepo) ListByPatient(_ context.Context, patientID int64) ([]*Claim, error) {
	result := []*Claim{}
	for _, c := range m.claims {
		if p, ok := m.policies.policies[c.PolicyID]; ok && p.PatientID == patientID {
			result = append(result, c)
		}
	}
	return result, nil
}

func newMockRepos() (*mockPolicyRepo, *mockClaimRepo) {
	claims := &mockClaimRepo{claims: make(map[string]*Claim)}
	policies := newMockPolicyRepo(claims)
	claims.policies = policies
	return policies, claims
}

func newTestService() *Service {
	return NewService(newMockRepos())
}

func samplePolicy(id string, patientID int64) *Policy {
	return &Policy{
		PolicyID:     id,
		PatientID:    patientID,
		Provider:     "Blue Cross",
		PolicyNumber: "BC12345",
		CoverageType: "Family",
		StartDate:    "2023-01-01",
		EndDate:      "2023-12-31",
	}
}

func sampleClaim(id string) *Claim {
	return &Claim{
		ClaimID:     id,
		PolicyID:    "POL001",
		RecordID:    5001,
		ClaimDate:   "2023-03-15",
		Amount:      1250.50,
		Description: "Annual checkup",
	}
}

// -- Policy Tests --

func TestCreatePolicy(t *testing.T) {
	svc := newTestService()
	p := samplePolicy("POL001", 1041)
	if err := svc.CreatePolicy(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CoverageDetails == nil {
		t.Error("expected coverage_details to default to an empty map")
	}
}

func TestCreatePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"missing id", func(p *Policy) { p.PolicyID = " " }},
		{"missing patient", func(p *Policy) { p.PatientID = 0 }},
		{"missing provider", func(p *Policy) { p.Provider = "" }},
		{"bad start", func(p *Policy) { p.StartDate = "2023/01/01" }},
		{"bad end", func(p *Policy) { p.EndDate = "" }},
		{"end before start", func(p *Policy) { p.EndDate = "2022-12-31" }},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePolicy("POL001", 1041)
			tt.mutate(p)
			if err := svc.CreatePolicy(context.Background(), p); !apperror.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreatePolicy_DuplicateLeavesOriginal(t *testing.T) {
	svc := newTestService()
	if err := svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041)); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := samplePolicy("POL001", 2000)
	dup.Provider = "Aetna"
	if err := svc.CreatePolicy(context.Background(), dup); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := svc.GetPolicy(context.Background(), "POL001")
	if got.PatientID != 1041 || got.Provider != "Blue Cross" {
		t.Errorf("expected original policy untouched, got %+v", got)
	}
}

func TestDeletePolicy_RemovesClaims(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))
	c := sampleClaim("")
	svc.CreateClaim(context.Background(), c)

	if err := svc.DeletePolicy(context.Background(), "POL001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetClaim(context.Background(), c.ClaimID); !apperror.IsNotFound(err) {
		t.Fatalf("expected claim to be deleted with its policy, got %v", err)
	}
}

func TestListPatientPolicies(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))
	svc.CreatePolicy(context.Background(), samplePolicy("POL002", 1042))

	policies, err := svc.ListPatientPolicies(context.Background(), 1041)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(policies) != 1 || policies[0].PolicyID != "POL001" {
		t.Errorf("unexpected policies: %+v", policies)
	}
}

// -- Claim Tests --

func TestCreateClaim_DefaultsStatus(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))

	c := sampleClaim("")
	if err := svc.CreateClaim(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != DefaultClaimStatus {
		t.Errorf("expected status %q, got %q", DefaultClaimStatus, c.Status)
	}
	if c.ClaimID != "CLM001" {
		t.Errorf("expected generated id CLM001, got %q", c.ClaimID)
	}
}

func TestCreateClaim_KeepsStatus(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))

	c := sampleClaim("CLM100")
	c.Status = "Approved"
	svc.CreateClaim(context.Background(), c)
	if c.Status != "Approved" || c.ClaimID != "CLM100" {
		t.Errorf("expected caller values kept, got %+v", c)
	}
}

func TestCreateClaim_MissingPolicy(t *testing.T) {
	svc := newTestService()
	c := sampleClaim("")
	if err := svc.CreateClaim(context.Background(), c); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, total, _ := svc.ListClaims(context.Background(), 10, 0)
	if total != 0 {
		t.Errorf("expected nothing created, got %d claims", total)
	}
}

func TestCreateClaim_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Claim)
	}{
		{"missing policy", func(c *Claim) { c.PolicyID = "" }},
		{"missing record", func(c *Claim) { c.RecordID = 0 }},
		{"bad date", func(c *Claim) { c.ClaimDate = "15.03.2023" }},
		{"negative amount", func(c *Claim) { c.Amount = -1 }},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleClaim("")
			tt.mutate(c)
			if err := svc.CreateClaim(context.Background(), c); !apperror.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateDeleteClaim(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))
	c := sampleClaim("")
	svc.CreateClaim(context.Background(), c)

	c.Status = "Denied"
	if err := svc.UpdateClaim(context.Background(), c); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := svc.GetClaim(context.Background(), c.ClaimID)
	if got.Status != "Denied" {
		t.Errorf("expected updated status, got %q", got.Status)
	}
	if err := svc.DeleteClaim(context.Background(), c.ClaimID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteClaim(context.Background(), c.ClaimID); !apperror.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListPatientClaims(t *testing.T) {
	svc := newTestService()
	svc.CreatePolicy(context.Background(), samplePolicy("POL001", 1041))
	svc.CreateClaim(context.Background(), sampleClaim(""))
	svc.CreateClaim(context.Background(), sampleClaim(""))

	claims, err := svc.ListPatientClaims(context.Background(), 1041)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claims) != 2 {
		t.Errorf("expected 2 claims, got %d", len(claims))
	}
	none, _ := svc.ListPatientClaims(context.Background(), 9999)
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}
