package insurance

import (
	"encoding/json"
	"fmt"

	"github.com/healthfed/healthfed/internal/platform/graph"
)

// DefaultClaimStatus is assigned to claims created without a status.
const DefaultClaimStatus = "Pending"

// Policy is an InsurancePolicy node. PatientID refers to a patient in the
// clinical store; nothing enforces that it exists.
type Policy struct {
	PolicyID        string                 `json:"policy_id"`
	PatientID       int64                  `json:"patient_id"`
	Provider        string                 `json:"provider"`
	PolicyNumber    string                 `json:"policy_number"`
	CoverageType    string                 `json:"coverage_type"`
	StartDate       string                 `json:"start_date"`
	EndDate         string                 `json:"end_date"`
	CoverageDetails map[string]interface{} `json:"coverage_details"`
}

// Claim is a Claim node filed under exactly one policy. RecordID refers to
// a medical record in the clinical store.
type Claim struct {
	ClaimID     string  `json:"claim_id"`
	PolicyID    string  `json:"policy_id"`
	RecordID    int64   `json:"record_id"`
	ClaimDate   string  `json:"claim_date"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
}

// encodeCoverage renders coverage details as the JSON string stored on the
// node. A nil map is stored as "{}".
func encodeCoverage(details map[string]interface{}) (string, error) {
	if details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encode coverage_details: %w", err)
	}
	return string(b), nil
}

// decodeCoverage parses the stored property. Absent, null and empty values
// decode to an empty map.
func decodeCoverage(raw interface{}) (map[string]interface{}, error) {
	details := map[string]interface{}{}
	switch v := raw.(type) {
	case nil:
		return details, nil
	case string:
		if v == "" || v == "null" {
			return details, nil
		}
		if err := json.Unmarshal([]byte(v), &details); err != nil {
			return nil, fmt.Errorf("decode coverage_details: %w", err)
		}
		if details == nil {
			details = map[string]interface{}{}
		}
		return details, nil
	case map[string]interface{}:
		for k, val := range v {
			details[k] = val
		}
		return details, nil
	default:
		return nil, fmt.Errorf("decode coverage_details: unexpected %T", raw)
	}
}

func (p *Policy) params() (map[string]interface{}, error) {
	coverage, err := encodeCoverage(p.CoverageDetails)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"policy_id":        p.PolicyID,
		"patient_id":       p.PatientID,
		"provider":         p.Provider,
		"policy_number":    p.PolicyNumber,
		"coverage_type":    p.CoverageType,
		"start_date":       p.StartDate,
		"end_date":         p.EndDate,
		"coverage_details": coverage,
	}, nil
}

func policyFromProps(props graph.Props) (*Policy, error) {
	coverage, err := decodeCoverage(props["coverage_details"])
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", props.String("policy_id"), err)
	}
	return &Policy{
		PolicyID:        props.String("policy_id"),
		PatientID:       props.Int64("patient_id"),
		Provider:        props.String("provider"),
		PolicyNumber:    props.String("policy_number"),
		CoverageType:    props.String("coverage_type"),
		StartDate:       props.String("start_date"),
		EndDate:         props.String("end_date"),
		CoverageDetails: coverage,
	}, nil
}

func (c *Claim) params() map[string]interface{} {
	return map[string]interface{}{
		"claim_id":    c.ClaimID,
		"policy_id":   c.PolicyID,
		"record_id":   c.RecordID,
		"claim_date":  c.ClaimDate,
		"amount":      c.Amount,
		"status":      c.Status,
		"description": c.Description,
	}
}

func claimFromProps(props graph.Props) *Claim {
	return &Claim{
		ClaimID:     props.String("claim_id"),
		PolicyID:    props.String("policy_id"),
		RecordID:    props.Int64("record_id"),
		ClaimDate:   props.String("claim_date"),
		Amount:      props.Float64("amount"),
		Status:      props.String("status"),
		Description: props.String("description"),
	}
}
