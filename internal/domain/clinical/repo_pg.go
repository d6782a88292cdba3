package clinical

import (
	"context"
	"errors"

	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/db"
)

// rowStore is the part of *db.Store the repositories use.
type rowStore interface {
	Query(ctx context.Context, sql string, args ...interface{}) ([]db.Row, error)
	QueryOne(ctx context.Context, sql string, args ...interface{}) (db.Row, error)
	InsertReturningID(ctx context.Context, sql string, args ...interface{}) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (int64, error)
}

func count(ctx context.Context, s rowStore, sql string, args ...interface{}) (int, error) {
	row, err := s.QueryOne(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return int(row.Int64("total")), nil
}

func notFoundIf(err error, entity string, id int64) error {
	if errors.Is(err, db.ErrNoRows) {
		return apperror.NewNotFound(entity, id)
	}
	return err
}

// -- Patient --

type patientRepoPG struct {
	store rowStore
}

func NewPatientRepoPG(store rowStore) PatientRepository {
	return &patientRepoPG{store: store}
}

const patientCols = `patient_id, first_name, last_name, date_of_birth, gender, address, phone, email`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	id, err := r.store.InsertReturningID(ctx, `
		INSERT INTO patients (first_name, last_name, date_of_birth, gender, address, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING patient_id`,
		p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Address, p.Phone, p.Email)
	if err != nil {
		return err
	}
	p.PatientID = id
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	row, err := r.store.QueryOne(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, id)
	if err != nil {
		return nil, notFoundIf(err, "patient", id)
	}
	return patientFromRow(row), nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	n, err := r.store.Exec(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, date_of_birth = $4,
			gender = $5, address = $6, phone = $7, email = $8
		WHERE patient_id = $1`,
		p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Address, p.Phone, p.Email)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("patient", p.PatientID)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	n, err := r.store.Exec(ctx, `DELETE FROM patients WHERE patient_id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	total, err := count(ctx, r.store, `SELECT COUNT(*) AS total FROM patients`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.store.Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY patient_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, patientFromRow(row))
	}
	return out, total, nil
}

// -- Doctor --

type doctorRepoPG struct {
	store rowStore
}

func NewDoctorRepoPG(store rowStore) DoctorRepository {
	return &doctorRepoPG{store: store}
}

const doctorCols = `doctor_id, first_name, last_name, specialization, phone, email`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	id, err := r.store.InsertReturningID(ctx, `
		INSERT INTO doctors (first_name, last_name, specialization, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING doctor_id`,
		d.FirstName, d.LastName, d.Specialization, d.Phone, d.Email)
	if err != nil {
		return err
	}
	d.DoctorID = id
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	row, err := r.store.QueryOne(ctx, `SELECT `+doctorCols+` FROM doctors WHERE doctor_id = $1`, id)
	if err != nil {
		return nil, notFoundIf(err, "doctor", id)
	}
	return doctorFromRow(row), nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	n, err := r.store.Exec(ctx, `
		UPDATE doctors SET first_name = $2, last_name = $3, specialization = $4, phone = $5, email = $6
		WHERE doctor_id = $1`,
		d.DoctorID, d.FirstName, d.LastName, d.Specialization, d.Phone, d.Email)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("doctor", d.DoctorID)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id int64) error {
	n, err := r.store.Exec(ctx, `DELETE FROM doctors WHERE doctor_id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("doctor", id)
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	total, err := count(ctx, r.store, `SELECT COUNT(*) AS total FROM doctors`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.store.Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY doctor_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Doctor, 0, len(rows))
	for _, row := range rows {
		out = append(out, doctorFromRow(row))
	}
	return out, total, nil
}

// -- MedicalRecord --

type medicalRecordRepoPG struct {
	store rowStore
}

func NewMedicalRecordRepoPG(store rowStore) MedicalRecordRepository {
	return &medicalRecordRepoPG{store: store}
}

const recordCols = `record_id, patient_id, doctor_id, diagnosis, treatment, notes, record_date`

func (r *medicalRecordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	id, err := r.store.InsertReturningID(ctx, `
		INSERT INTO medical_records (patient_id, doctor_id, diagnosis, treatment, notes, record_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING record_id`,
		m.PatientID, m.DoctorID, m.Diagnosis, m.Treatment, m.Notes, m.RecordDate)
	if err != nil {
		return err
	}
	m.RecordID = id
	return nil
}

func (r *medicalRecordRepoPG) GetByID(ctx context.Context, id int64) (*MedicalRecord, error) {
	row, err := r.store.QueryOne(ctx, `SELECT `+recordCols+` FROM medical_records WHERE record_id = $1`, id)
	if err != nil {
		return nil, notFoundIf(err, "medical_record", id)
	}
	return recordFromRow(row), nil
}

func (r *medicalRecordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	n, err := r.store.Exec(ctx, `
		UPDATE medical_records SET patient_id = $2, doctor_id = $3, diagnosis = $4,
			treatment = $5, notes = $6, record_date = $7
		WHERE record_id = $1`,
		m.RecordID, m.PatientID, m.DoctorID, m.Diagnosis, m.Treatment, m.Notes, m.RecordDate)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("medical_record", m.RecordID)
	}
	return nil
}

func (r *medicalRecordRepoPG) Delete(ctx context.Context, id int64) error {
	n, err := r.store.Exec(ctx, `DELETE FROM medical_records WHERE record_id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("medical_record", id)
	}
	return nil
}

func (r *medicalRecordRepoPG) List(ctx context.Context, limit, offset int) ([]*MedicalRecord, int, error) {
	total, err := count(ctx, r.store, `SELECT COUNT(*) AS total FROM medical_records`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.store.Query(ctx, `SELECT `+recordCols+` FROM medical_records ORDER BY record_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return recordsFromRows(rows), total, nil
}

func (r *medicalRecordRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*MedicalRecord, error) {
	rows, err := r.store.Query(ctx, `SELECT `+recordCols+` FROM medical_records WHERE patient_id = $1 ORDER BY record_date, record_id`, patientID)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(rows), nil
}

func recordsFromRows(rows []db.Row) []*MedicalRecord {
	out := make([]*MedicalRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordFromRow(row))
	}
	return out
}
