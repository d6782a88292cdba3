package clinical

import (
	"github.com/healthfed/healthfed/internal/platform/db"
)

// Patient is a person registered with the hospital.
type Patient struct {
	PatientID   int64   `json:"patient_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Email       *string `json:"email"`
}

// Doctor is a treating physician referenced by medical records.
type Doctor struct {
	DoctorID       int64  `json:"doctor_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Specialization string `json:"specialization"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
}

// MedicalRecord documents one encounter of a patient with a doctor. Claims
// in the insurance store refer to it by RecordID.
type MedicalRecord struct {
	RecordID   int64   `json:"record_id"`
	PatientID  int64   `json:"patient_id"`
	DoctorID   int64   `json:"doctor_id"`
	Diagnosis  string  `json:"diagnosis"`
	Treatment  string  `json:"treatment"`
	Notes      *string `json:"notes"`
	RecordDate string  `json:"record_date"`
}

func patientFromRow(r db.Row) *Patient {
	return &Patient{
		PatientID:   r.Int64("patient_id"),
		FirstName:   r.String("first_name"),
		LastName:    r.String("last_name"),
		DateOfBirth: r.String("date_of_birth"),
		Gender:      r.String("gender"),
		Address:     r.String("address"),
		Phone:       r.String("phone"),
		Email:       r.StringPtr("email"),
	}
}

func doctorFromRow(r db.Row) *Doctor {
	return &Doctor{
		DoctorID:       r.Int64("doctor_id"),
		FirstName:      r.String("first_name"),
		LastName:       r.String("last_name"),
		Specialization: r.String("specialization"),
		Phone:          r.String("phone"),
		Email:          r.String("email"),
	}
}

func recordFromRow(r db.Row) *MedicalRecord {
	return &MedicalRecord{
		RecordID:   r.Int64("record_id"),
		PatientID:  r.Int64("patient_id"),
		DoctorID:   r.Int64("doctor_id"),
		Diagnosis:  r.String("diagnosis"),
		Treatment:  r.String("treatment"),
		Notes:      r.StringPtr("notes"),
		RecordDate: r.String("record_date"),
	}
}
