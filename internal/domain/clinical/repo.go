package clinical

import (
	"context"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type MedicalRecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id int64) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*MedicalRecord, int, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*MedicalRecord, error)
}
