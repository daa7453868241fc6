package pharmacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
)

func ptr[T any](v T) *T {
	return &v
}

type prescriptionRecord struct {
	status    contracts.RxStatus
	expiresAt string
	refills   int
}

// PrescriptionVerify decides whether a patient can proceed with a new or refill request.
// The latest prescription by expiry date is the one that counts.
func (s *Store) PrescriptionVerify(ctx context.Context, in contracts.PrescriptionVerifyInput) (contracts.PrescriptionVerifyOutput, error) {
	var medFound, rxRequired, patientFound bool
	var rx *prescriptionRecord

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var required int64
		err := conn.QueryRowContext(ctx, `SELECT rx_required FROM medications WHERE med_id = ?`, in.MedID).Scan(&required)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		medFound, rxRequired = true, required != 0
		if !rxRequired {
			return nil
		}

		var one int
		err = conn.QueryRowContext(ctx, `SELECT 1 FROM patients WHERE patient_id = ?`, in.PatientID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		patientFound = true

		var rec prescriptionRecord
		err = conn.QueryRowContext(ctx, `
			SELECT status, expires_at, refills_remaining
			FROM prescriptions
			WHERE patient_id = ? AND med_id = ?
			ORDER BY expires_at DESC
			LIMIT 1`, in.PatientID, in.MedID).Scan(&rec.status, &rec.expiresAt, &rec.refills)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		rx = &rec
		return nil
	})
	if err != nil {
		return contracts.PrescriptionVerifyOutput{}, fmt.Errorf("prescription lookup: %w", err)
	}

	switch {
	case !medFound:
		return contracts.PrescriptionVerifyOutput{Envelope: contracts.Failure(contracts.ErrMedNotFound, "Medication not found.")}, nil
	case !rxRequired:
		return contracts.PrescriptionVerifyOutput{
			Envelope:   contracts.Success(),
			RxRequired: ptr(false),
			NextStep:   contracts.StepAllowRefillRequest,
			Notes:      "No prescription required for this medication.",
		}, nil
	case !patientFound:
		return contracts.PrescriptionVerifyOutput{Envelope: contracts.Failure(contracts.ErrPatientNotFound, "Patient not found.")}, nil
	case rx == nil:
		next := contracts.StepCannotProceed
		if in.Intent == contracts.IntentNew {
			next = contracts.StepRequestRxDetails
		}
		return contracts.PrescriptionVerifyOutput{
			Envelope:     contracts.Success(),
			RxRequired:   ptr(true),
			PatientFound: ptr(true),
			HasValidRx:   ptr(false),
			NextStep:     next,
			Notes:        "No prescription on file.",
		}, nil
	}

	today := s.Now().Format(time.DateOnly)
	valid := rx.status == contracts.RxActive && rx.expiresAt >= today
	if in.Intent == contracts.IntentRefill {
		valid = valid && rx.refills > 0
	}
	next := contracts.StepCannotProceed
	if valid {
		next = contracts.StepAllowRefillRequest
	}

	return contracts.PrescriptionVerifyOutput{
		Envelope:         contracts.Success(),
		RxRequired:       ptr(true),
		PatientFound:     ptr(true),
		HasValidRx:       ptr(valid),
		RxStatus:         rx.status,
		ExpiresAt:        rx.expiresAt,
		RefillsRemaining: ptr(rx.refills),
		NextStep:         next,
	}, nil
}
