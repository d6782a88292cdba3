package insurance

import (
	"context"
	"strings"
	"time"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

const dateLayout = "2006-01-02"

type Service struct {
	policies PolicyRepository
	claims   ClaimRepository
}

func NewService(policies PolicyRepository, claims ClaimRepository) *Service {
	return &Service{policies: policies, claims: claims}
}

func invalid(entity, msg string) error {
	return apperror.NewValidation(entity, msg, nil)
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	return t, err == nil
}

// -- Policy --

func validatePolicy(p *Policy) error {
	p.PolicyID = strings.TrimSpace(p.PolicyID)
	if p.PolicyID == "" {
		return invalid("insurance_policy", "policy_id is required")
	}
	if p.PatientID <= 0 {
		return invalid("insurance_policy", "patient_id is required")
	}
	if strings.TrimSpace(p.Provider) == "" {
		return invalid("insurance_policy", "provider is required")
	}
	start, ok := parseDate(p.StartDate)
	if !ok {
		return invalid("insurance_policy", "start_date must be a YYYY-MM-DD date")
	}
	end, ok := parseDate(p.EndDate)
	if !ok {
		return invalid("insurance_policy", "end_date must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return invalid("insurance_policy", "end_date is before start_date")
	}
	if p.CoverageDetails == nil {
		p.CoverageDetails = map[string]interface{}{}
	}
	return nil
}

func (s *Service) CreatePolicy(ctx context.Context, p *Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	return s.policies.Create(ctx, p)
}

func (s *Service) GetPolicy(ctx context.Context, policyID string) (*Policy, error) {
	return s.policies.GetByID(ctx, policyID)
}

func (s *Service) UpdatePolicy(ctx context.Context, p *Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	return s.policies.Update(ctx, p)
}

// DeletePolicy removes the policy together with its claims.
func (s *Service) DeletePolicy(ctx context.Context, policyID string) error {
	return s.policies.Delete(ctx, policyID)
}

func (s *Service) ListPolicies(ctx context.Context, limit, offset int) ([]*Policy, int, error) {
	return s.policies.List(ctx, limit, offset)
}

func (s *Service) ListPatientPolicies(ctx context.Context, patientID int64) ([]*Policy, error) {
	return s.policies.ListByPatient(ctx, patientID)
}

// -- Claim --

func validateClaim(c *Claim) error {
	c.ClaimID = strings.TrimSpace(c.ClaimID)
	c.PolicyID = strings.TrimSpace(c.PolicyID)
	if c.PolicyID == "" {
		return invalid("claim", "policy_id is required")
	}
	if c.RecordID <= 0 {
		return invalid("claim", "record_id is required")
	}
	if _, ok := parseDate(c.ClaimDate); !ok {
		return invalid("claim", "claim_date must be a YYYY-MM-DD date")
	}
	if c.Amount < 0 {
		return invalid("claim", "amount must not be negative")
	}
	if strings.TrimSpace(c.Status) == "" {
		c.Status = DefaultClaimStatus
	}
	return nil
}

// CreateClaim files c under its policy, generating a claim id when none
// is given. A missing policy is a validation failure.
func (s *Service) CreateClaim(ctx context.Context, c *Claim) error {
	if err := validateClaim(c); err != nil {
		return err
	}
	return s.claims.Create(ctx, c)
}

func (s *Service) GetClaim(ctx context.Context, claimID string) (*Claim, error) {
	return s.claims.GetByID(ctx, claimID)
}

func (s *Service) UpdateClaim(ctx context.Context, c *Claim) error {
	if err := validateClaim(c); err != nil {
		return err
	}
	return s.claims.Update(ctx, c)
}

func (s *Service) DeleteClaim(ctx context.Context, claimID string) error {
	return s.claims.Delete(ctx, claimID)
}

func (s *Service) ListClaims(ctx context.Context, limit, offset int) ([]*Claim, int, error) {
	return s.claims.List(ctx, limit, offset)
}

func (s *Service) ListPatientClaims(ctx context.Context, patientID int64) ([]*Claim, error) {
	return s.claims.ListByPatient(ctx, patientID)
}
