package federation

import (
	"github.com/healthfed/healthfed/internal/domain/clinical"
	"github.com/healthfed/healthfed/internal/domain/insurance"
)

// PatientComplete is a patient joined with everything both stores hold
// about them. The collections are never nil.
type PatientComplete struct {
	Patient           *clinical.Patient         `json:"patient_info"`
	InsurancePolicies []*insurance.Policy       `json:"insurance_policies"`
	MedicalRecords    []*clinical.MedicalRecord `json:"medical_records"`
	Claims            []*insurance.Claim        `json:"claims"`
}

// ClaimComplete is a claim joined with its policy, the medical record it
// bills for and the policy holder.
type ClaimComplete struct {
	Claim         *insurance.Claim        `json:"claim_info"`
	Policy        *insurance.Policy       `json:"policy_info"`
	MedicalRecord *clinical.MedicalRecord `json:"medical_record"`
	Patient       *clinical.Patient       `json:"patient_info"`
}
