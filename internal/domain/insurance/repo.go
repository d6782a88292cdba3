package insurance

import (
	"context"
)

type PolicyRepository interface {
	Create(ctx context.Context, p *Policy) error
	GetByID(ctx context.Context, policyID string) (*Policy, error)
	Update(ctx context.Context, p *Policy) error
	Delete(ctx context.Context, policyID string) error
	List(ctx context.Context, limit, offset int) ([]*Policy, int, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*Policy, error)
	// GetByClaim follows the claim's FILED_UNDER edge.
	GetByClaim(ctx context.Context, claimID string) (*Policy, error)
}

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, claimID string) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, claimID string) error
	List(ctx context.Context, limit, offset int) ([]*Claim, int, error)
	// ListByPatient returns claims filed under any of the patient's policies.
	ListByPatient(ctx context.Context, patientID int64) ([]*Claim, error)
}
