package insurance

import (
	"context"
	"fmt"

	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/graph"
	"github.com/healthfed/healthfed/pkg/pagination"
)

// graphStore is the part of *graph.Store the repositories use.
type graphStore interface {
	Read(ctx context.Context, cypher string, params map[string]interface{}) ([]graph.Record, error)
	Write(ctx context.Context, cypher string, params map[string]interface{}) ([]graph.Record, error)
	WriteTx(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error
}

func countNodes(ctx context.Context, s graphStore, cypher string) (int, error) {
	records, err := s.Read(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return int(graph.Props(records[0]).Int64("total")), nil
}

func page(limit, offset int) map[string]interface{} {
	return pagination.Params{Limit: limit, Offset: offset}.Cypher()
}

// -- Policy --

type policyRepoNeo4j struct {
	store graphStore
}

func NewPolicyRepoNeo4j(store graphStore) PolicyRepository {
	return &policyRepoNeo4j{store: store}
}

func policiesFrom(records []graph.Record) ([]*Policy, error) {
	out := make([]*Policy, 0, len(records))
	for _, rec := range records {
		p, err := policyFromProps(rec.Props("p"))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Create relies on the policy_id uniqueness constraint; a duplicate is
// rejected by the store and the existing node is left untouched.
func (r *policyRepoNeo4j) Create(ctx context.Context, p *Policy) error {
	params, err := p.params()
	if err != nil {
		return apperror.NewValidation("insurance_policy", "coverage_details is not encodable", err)
	}
	_, err = r.store.Write(ctx, `
		CREATE (p:InsurancePolicy {
			policy_id: $policy_id,
			patient_id: $patient_id,
			provider: $provider,
			policy_number: $policy_number,
			coverage_type: $coverage_type,
			start_date: $start_date,
			end_date: $end_date,
			coverage_details: $coverage_details
		})
		RETURN p`, params)
	if graph.IsConstraintViolation(err) {
		return apperror.NewValidation("insurance_policy", fmt.Sprintf("insurance policy %s already exists", p.PolicyID), err)
	}
	return err
}

func (r *policyRepoNeo4j) GetByID(ctx context.Context, policyID string) (*Policy, error) {
	records, err := r.store.Read(ctx,
		`MATCH (p:InsurancePolicy {policy_id: $policy_id}) RETURN p`,
		map[string]interface{}{"policy_id": policyID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NewNotFound("insurance_policy", policyID)
	}
	return policyFromProps(records[0].Props("p"))
}

func (r *policyRepoNeo4j) Update(ctx context.Context, p *Policy) error {
	params, err := p.params()
	if err != nil {
		return apperror.NewValidation("insurance_policy", "coverage_details is not encodable", err)
	}
	records, err := r.store.Write(ctx, `
		MATCH (p:InsurancePolicy {policy_id: $policy_id})
		SET p.patient_id = $patient_id,
			p.provider = $provider,
			p.policy_number = $policy_number,
			p.coverage_type = $coverage_type,
			p.start_date = $start_date,
			p.end_date = $end_date,
			p.coverage_details = $coverage_details
		RETURN p`, params)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperror.NewNotFound("insurance_policy", p.PolicyID)
	}
	return nil
}

// Delete removes the policy and every claim filed under it in one
// transaction.
func (r *policyRepoNeo4j) Delete(ctx context.Context, policyID string) error {
	params := map[string]interface{}{"policy_id": policyID}
	return r.store.WriteTx(ctx, func(ctx context.Context, tx graph.Tx) error {
		found, err := tx.Run(ctx, `MATCH (p:InsurancePolicy {policy_id: $policy_id}) RETURN p.policy_id AS policy_id`, params)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return apperror.NewNotFound("insurance_policy", policyID)
		}
		if _, err := tx.Run(ctx, `
			MATCH (c:Claim)-[:FILED_UNDER]->(:InsurancePolicy {policy_id: $policy_id})
			DETACH DELETE c`, params); err != nil {
			return err
		}
		_, err = tx.Run(ctx, `MATCH (p:InsurancePolicy {policy_id: $policy_id}) DETACH DELETE p`, params)
		return err
	})
}

func (r *policyRepoNeo4j) List(ctx context.Context, limit, offset int) ([]*Policy, int, error) {
	total, err := countNodes(ctx, r.store, `MATCH (p:InsurancePolicy) RETURN count(p) AS total`)
	if err != nil {
		return nil, 0, err
	}
	records, err := r.store.Read(ctx,
		`MATCH (p:InsurancePolicy) RETURN p ORDER BY p.policy_id SKIP $offset LIMIT $limit`,
		page(limit, offset))
	if err != nil {
		return nil, 0, err
	}
	policies, err := policiesFrom(records)
	if err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

func (r *policyRepoNeo4j) ListByPatient(ctx context.Context, patientID int64) ([]*Policy, error) {
	records, err := r.store.Read(ctx,
		`MATCH (p:InsurancePolicy {patient_id: $patient_id}) RETURN p ORDER BY p.policy_id`,
		map[string]interface{}{"patient_id": patientID})
	if err != nil {
		return nil, err
	}
	return policiesFrom(records)
}

func (r *policyRepoNeo4j) GetByClaim(ctx context.Context, claimID string) (*Policy, error) {
	records, err := r.store.Read(ctx, `
		MATCH (:Claim {claim_id: $claim_id})-[:FILED_UNDER]->(p:InsurancePolicy)
		RETURN p LIMIT 1`,
		map[string]interface{}{"claim_id": claimID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NewNotFound("insurance_policy", "for claim "+claimID)
	}
	return policyFromProps(records[0].Props("p"))
}

// -- Claim --

// maxClaimIDAttempts bounds both the sequence values one create draws past
// caller-assigned ids and the transaction retries on a concurrent collision.
const maxClaimIDAttempts = 5

type claimRepoNeo4j struct {
	store graphStore
}

func NewClaimRepoNeo4j(store graphStore) ClaimRepository {
	return &claimRepoNeo4j{store: store}
}

func claimsFrom(records []graph.Record) []*Claim {
	out := make([]*Claim, 0, len(records))
	for _, rec := range records {
		out = append(out, claimFromProps(rec.Props("c")))
	}
	return out
}

// runFunc runs one statement, either on its own or inside an open
// transaction.
type runFunc func(ctx context.Context, cypher string, params map[string]interface{}) ([]graph.Record, error)

// drawClaimID increments the ClaimSequence node inside tx until it yields
// an id no claim holds, up to maxClaimIDAttempts draws. On first use the
// sequence starts from the current number of claims so ids continue after
// existing data.
func drawClaimID(ctx context.Context, tx graph.Tx) (string, error) {
	for attempt := 0; attempt < maxClaimIDAttempts; attempt++ {
		records, err := tx.Run(ctx, `
			OPTIONAL MATCH (existing:Claim)
			WITH count(existing) AS total
			MERGE (seq:ClaimSequence {name: 'claim'})
			ON CREATE SET seq.value = total
			SET seq.value = seq.value + 1
			RETURN seq.value AS value`, nil)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", fmt.Errorf("claim sequence returned no value")
		}
		id := fmt.Sprintf("CLM%03d", graph.Props(records[0]).Int64("value"))

		taken, err := tx.Run(ctx,
			`MATCH (c:Claim {claim_id: $claim_id}) RETURN c.claim_id AS claim_id`,
			map[string]interface{}{"claim_id": id})
		if err != nil {
			return "", err
		}
		if len(taken) == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("allocate claim id: %d sequence values already taken", maxClaimIDAttempts)
}

// Create files the claim under its policy. Without a claim id one is drawn
// from the sequence in the same transaction as the create, so a rejected
// create leaves the sequence untouched. The transaction is retried, up to
// maxClaimIDAttempts, when a concurrent writer takes the drawn id first.
// Caller-supplied ids are tried once.
func (r *claimRepoNeo4j) Create(ctx context.Context, c *Claim) error {
	if c.ClaimID != "" {
		err := createClaim(ctx, r.store.Write, c)
		if graph.IsConstraintViolation(err) {
			return apperror.NewValidation("claim", fmt.Sprintf("claim %s already exists", c.ClaimID), err)
		}
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxClaimIDAttempts; attempt++ {
		err := r.store.WriteTx(ctx, func(ctx context.Context, tx graph.Tx) error {
			id, err := drawClaimID(ctx, tx)
			if err != nil {
				return err
			}
			c.ClaimID = id
			return createClaim(ctx, tx.Run, c)
		})
		if err == nil {
			return nil
		}
		c.ClaimID = ""
		if !graph.IsConstraintViolation(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("allocate claim id after %d attempts: %w", maxClaimIDAttempts, lastErr)
}

func createClaim(ctx context.Context, run runFunc, c *Claim) error {
	records, err := run(ctx, `
		MATCH (p:InsurancePolicy {policy_id: $policy_id})
		CREATE (c:Claim {
			claim_id: $claim_id,
			policy_id: $policy_id,
			record_id: $record_id,
			claim_date: $claim_date,
			amount: $amount,
			status: $status,
			description: $description
		})-[:FILED_UNDER]->(p)
		RETURN c`, c.params())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperror.NewValidation("claim", fmt.Sprintf("insurance policy %s does not exist", c.PolicyID), nil)
	}
	return nil
}

func (r *claimRepoNeo4j) GetByID(ctx context.Context, claimID string) (*Claim, error) {
	records, err := r.store.Read(ctx,
		`MATCH (c:Claim {claim_id: $claim_id}) RETURN c`,
		map[string]interface{}{"claim_id": claimID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NewNotFound("claim", claimID)
	}
	return claimFromProps(records[0].Props("c")), nil
}

// Update replaces the claim's properties and moves its FILED_UNDER edge
// when the policy changes. The new policy must exist.
func (r *claimRepoNeo4j) Update(ctx context.Context, c *Claim) error {
	params := c.params()
	return r.store.WriteTx(ctx, func(ctx context.Context, tx graph.Tx) error {
		found, err := tx.Run(ctx, `MATCH (c:Claim {claim_id: $claim_id}) RETURN c.claim_id AS claim_id`, params)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return apperror.NewNotFound("claim", c.ClaimID)
		}
		policy, err := tx.Run(ctx, `MATCH (p:InsurancePolicy {policy_id: $policy_id}) RETURN p.policy_id AS policy_id`, params)
		if err != nil {
			return err
		}
		if len(policy) == 0 {
			return apperror.NewValidation("claim", fmt.Sprintf("insurance policy %s does not exist", c.PolicyID), nil)
		}
		_, err = tx.Run(ctx, `
			MATCH (c:Claim {claim_id: $claim_id}), (p:InsurancePolicy {policy_id: $policy_id})
			OPTIONAL MATCH (c)-[old:FILED_UNDER]->()
			DELETE old
			WITH DISTINCT c, p
			CREATE (c)-[:FILED_UNDER]->(p)
			SET c.policy_id = $policy_id,
				c.record_id = $record_id,
				c.claim_date = $claim_date,
				c.amount = $amount,
				c.status = $status,
				c.description = $description`, params)
		return err
	})
}

func (r *claimRepoNeo4j) Delete(ctx context.Context, claimID string) error {
	records, err := r.store.Write(ctx, `
		MATCH (c:Claim {claim_id: $claim_id})
		WITH c, c.claim_id AS claim_id
		DETACH DELETE c
		RETURN claim_id`,
		map[string]interface{}{"claim_id": claimID})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperror.NewNotFound("claim", claimID)
	}
	return nil
}

func (r *claimRepoNeo4j) List(ctx context.Context, limit, offset int) ([]*Claim, int, error) {
	total, err := countNodes(ctx, r.store, `MATCH (c:Claim) RETURN count(c) AS total`)
	if err != nil {
		return nil, 0, err
	}
	records, err := r.store.Read(ctx,
		`MATCH (c:Claim) RETURN c ORDER BY c.claim_id SKIP $offset LIMIT $limit`,
		page(limit, offset))
	if err != nil {
		return nil, 0, err
	}
	return claimsFrom(records), total, nil
}

func (r *claimRepoNeo4j) ListByPatient(ctx context.Context, patientID int64) ([]*Claim, error) {
	records, err := r.store.Read(ctx, `
		MATCH (c:Claim)-[:FILED_UNDER]->(:InsurancePolicy {patient_id: $patient_id})
		RETURN c ORDER BY c.claim_id`,
		map[string]interface{}{"patient_id": patientID})
	if err != nil {
		return nil, err
	}
	return claimsFrom(records), nil
}
