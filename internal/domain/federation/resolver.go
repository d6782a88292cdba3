// Package federation resolves composite views that span the clinical and
// insurance stores. Neither store knows about the other; references between
// them are checked here, per request, and a dangling one is reported with
// the stage of the lookup that could not follow it.
package federation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/healthfed/healthfed/internal/domain/clinical"
	"github.com/healthfed/healthfed/internal/domain/insurance"
	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/metrics"
)

// Views and the stages of each.
const (
	ViewPatient = "patient"
	ViewClaim   = "claim"

	StagePatient           = "patient"
	StageMedicalRecords    = "medical_records"
	StageInsurancePolicies = "insurance_policies"
	StageClaims            = "claims"

	StageClaim         = "claim"
	StagePolicy        = "policy"
	StageMedicalRecord = "medical_record"
)

type PatientReader interface {
	GetByID(ctx context.Context, id int64) (*clinical.Patient, error)
}

type RecordReader interface {
	GetByID(ctx context.Context, id int64) (*clinical.MedicalRecord, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*clinical.MedicalRecord, error)
}

type PolicyReader interface {
	ListByPatient(ctx context.Context, patientID int64) ([]*insurance.Policy, error)
	GetByClaim(ctx context.Context, claimID string) (*insurance.Policy, error)
}

type ClaimReader interface {
	GetByID(ctx context.Context, claimID string) (*insurance.Claim, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*insurance.Claim, error)
}

// Options carries the resolver's observability hooks.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Resolver struct {
	patients PatientReader
	records  RecordReader
	policies PolicyReader
	claims   ClaimReader
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewResolver(patients PatientReader, records RecordReader, policies PolicyReader, claims ClaimReader, opts Options) *Resolver {
	return &Resolver{
		patients: patients,
		records:  records,
		policies: policies,
		claims:   claims,
		logger:   opts.Logger.With().Str("component", "federation").Logger(),
		metrics:  opts.Metrics,
	}
}

// fail tags err with stage, counts it and logs it.
func (r *Resolver) fail(view, stage string, err error) error {
	err = apperror.WithStage(err, stage)
	r.metrics.ObserveFederationFailure(view, stage, err)

	ev := r.logger.Debug()
	switch kind := apperror.KindOf(err); {
	case errors.Is(err, context.Canceled):
	case kind == apperror.BrokenLink:
		ev = r.logger.Warn()
	case kind == apperror.StoreUnavailable, kind == 0:
		ev = r.logger.Error()
	}
	ev.Err(err).Str("view", view).Str("stage", stage).Msg("composite lookup aborted")
	return err
}

// link turns a NotFound on a cross-store reference into a broken link.
// Other failures keep their kind.
func link(stage, entity string, err error) error {
	if apperror.IsNotFound(err) {
		return apperror.NewBrokenLink(stage, entity, err)
	}
	return err
}

// CompletePatient loads the patient and then, concurrently, the patient's
// medical records, policies and claims. An unknown patient is NotFound
// and no further lookups are made. A failing branch cancels the others.
func (r *Resolver) CompletePatient(ctx context.Context, patientID int64) (*PatientComplete, error) {
	patient, err := r.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, r.fail(ViewPatient, StagePatient, err)
	}

	out := &PatientComplete{Patient: patient}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		records, err := r.records.ListByPatient(gctx, patientID)
		if err != nil {
			return apperror.WithStage(err, StageMedicalRecords)
		}
		out.MedicalRecords = records
		return nil
	})
	g.Go(func() error {
		policies, err := r.policies.ListByPatient(gctx, patientID)
		if err != nil {
			return apperror.WithStage(err, StageInsurancePolicies)
		}
		out.InsurancePolicies = policies
		return nil
	})
	g.Go(func() error {
		claims, err := r.claims.ListByPatient(gctx, patientID)
		if err != nil {
			return apperror.WithStage(err, StageClaims)
		}
		out.Claims = claims
		return nil
	})

	if err := g.Wait(); err != nil {
		var ae *apperror.Error
		stage := ""
		if errors.As(err, &ae) {
			stage = ae.Stage
		}
		return nil, r.fail(ViewPatient, stage, err)
	}

	if out.MedicalRecords == nil {
		out.MedicalRecords = []*clinical.MedicalRecord{}
	}
	if out.InsurancePolicies == nil {
		out.InsurancePolicies = []*insurance.Policy{}
	}
	if out.Claims == nil {
		out.Claims = []*insurance.Claim{}
	}
	return out, nil
}

// CompleteClaim walks claim, policy, medical record and patient in order.
// Each step depends on the one before, so nothing runs concurrently and
// the first failure stops the walk.
func (r *Resolver) CompleteClaim(ctx context.Context, claimID string) (*ClaimComplete, error) {
	claim, err := r.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, r.fail(ViewClaim, StageClaim, err)
	}

	policy, err := r.policies.GetByClaim(ctx, claimID)
	if err != nil {
		return nil, r.fail(ViewClaim, StagePolicy, link(StagePolicy, "insurance_policy", err))
	}

	record, err := r.records.GetByID(ctx, claim.RecordID)
	if err != nil {
		return nil, r.fail(ViewClaim, StageMedicalRecord, link(StageMedicalRecord, "medical_record", err))
	}

	patient, err := r.patients.GetByID(ctx, policy.PatientID)
	if err != nil {
		return nil, r.fail(ViewClaim, StagePatient, link(StagePatient, "patient", err))
	}

	return &ClaimComplete{
		Claim:         claim,
		Policy:        policy,
		MedicalRecord: record,
		Patient:       patient,
	}, nil
}
