package clinical

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/db"
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	records  MedicalRecordRepository
}

func NewService(patients PatientRepository, doctors DoctorRepository, records MedicalRecordRepository) *Service {
	return &Service{patients: patients, doctors: doctors, records: records}
}

func invalid(entity, msg string) error {
	return apperror.NewValidation(entity, msg, nil)
}

// isDate reports whether s is an ISO calendar date.
func isDate(s string) bool {
	_, err := time.Parse(db.DateLayout, s)
	return err == nil
}

func isEmail(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

// -- Patient --

func validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return invalid("patient", "first_name and last_name are required")
	}
	if !isDate(p.DateOfBirth) {
		return invalid("patient", "date_of_birth must be a YYYY-MM-DD date")
	}
	if p.Email != nil && *p.Email != "" && !isEmail(*p.Email) {
		return invalid("patient", "email is not a valid address")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

// DeletePatient removes the patient row only. Medical records are not
// cascaded; the foreign key rejects the delete while any remain.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Doctor --

func validateDoctor(d *Doctor) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	if d.FirstName == "" || d.LastName == "" {
		return invalid("doctor", "first_name and last_name are required")
	}
	if d.Email != "" && !isEmail(d.Email) {
		return invalid("doctor", "email is not a valid address")
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id int64) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- MedicalRecord --

// validateRecord checks shape only. Whether the patient and doctor exist is
// left to the relational foreign keys.
func validateRecord(m *MedicalRecord) error {
	if m.PatientID <= 0 || m.DoctorID <= 0 {
		return invalid("medical_record", "patient_id and doctor_id are required")
	}
	if strings.TrimSpace(m.Diagnosis) == "" {
		return invalid("medical_record", "diagnosis is required")
	}
	if !isDate(m.RecordDate) {
		return invalid("medical_record", "record_date must be a YYYY-MM-DD date")
	}
	return nil
}

func (s *Service) CreateMedicalRecord(ctx context.Context, m *MedicalRecord) error {
	if err := validateRecord(m); err != nil {
		return err
	}
	return s.records.Create(ctx, m)
}

func (s *Service) GetMedicalRecord(ctx context.Context, id int64) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) UpdateMedicalRecord(ctx context.Context, m *MedicalRecord) error {
	if err := validateRecord(m); err != nil {
		return err
	}
	return s.records.Update(ctx, m)
}

func (s *Service) DeleteMedicalRecord(ctx context.Context, id int64) error {
	return s.records.Delete(ctx, id)
}

func (s *Service) ListMedicalRecords(ctx context.Context, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.records.List(ctx, limit, offset)
}

// ListPatientRecords returns the patient's records, empty when the patient
// has none or does not exist.
func (s *Service) ListPatientRecords(ctx context.Context, patientID int64) ([]*MedicalRecord, error) {
	return s.records.ListByPatient(ctx, patientID)
}
