package scheduling

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agenda/agenda/internal/domain/professional"
)

// TransitionService changes appointment statuses through the lock gate.
type TransitionService struct {
	deps
}

// Transition moves an appointment of professionalID to nextStatus. A refused
// move returns the decision together with ErrLockedTransition. Moving to the
// current status is a no-op.
func (s *TransitionService) Transition(ctx context.Context, professionalID, appointmentID, nextStatus string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "scheduling.Transition")
	defer span.End()

	d, err := s.transition(ctx, professionalID, appointmentID, nextStatus)
	outcome := "allowed"
	if err != nil {
		outcome = ErrorKind(err)
	}
	span.SetAttributes(
		attribute.String("appointment.id", appointmentID),
		attribute.String("transition.to", nextStatus),
		attribute.String("transition.outcome", outcome),
	)
	to := nextStatus
	if _, perr := ParseStatus(nextStatus); perr != nil {
		to = "invalid"
	}
	s.metrics.ObserveTransition(to, outcome)

	switch {
	case errors.Is(err, ErrPersistence):
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
		s.logger.Error().Err(err).Str("appointment_id", appointmentID).Msg("transition failed")
	case err != nil:
		s.logger.Warn().Err(err).Str("appointment_id", appointmentID).Str("kind", outcome).Msg("transition rejected")
	default:
		s.logger.Info().Str("appointment_id", appointmentID).Str("to", nextStatus).Msg("appointment status changed")
	}
	return d, err
}

func (s *TransitionService) transition(ctx context.Context, professionalID, appointmentID, nextStatus string) (Decision, error) {
	next, err := ParseStatus(nextStatus)
	if err != nil {
		return Decision{}, err
	}

	ledger, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return Decision{}, err
	}
	var current *Appointment
	for i := range ledger {
		if ledger[i].ID == appointmentID {
			current = &ledger[i]
			break
		}
	}
	if current == nil {
		return Decision{Reason: reasonNotFound}, fmt.Errorf("%w: appointment %s", ErrNotFound, appointmentID)
	}

	d := CanTransition(ledger, appointmentID, next)
	if !d.Allowed {
		return d, fmt.Errorf("%w: %s", ErrLockedTransition, d.Reason)
	}
	if current.Status == next {
		return d, nil
	}

	if next == StatusConfirmed {
		if err := s.checkQuota(ctx, professionalID, current, ledger); err != nil {
			return Decision{Reason: err.Error()}, err
		}
	}

	from := current.Status
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.Appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.Status != from {
			return fmt.Errorf("%w: appointment %s changed concurrently", ErrPersistence, appointmentID)
		}
		claim, err := tx.Claim(ctx, professionalID, a.Key())
		if err != nil {
			return err
		}

		now := s.now().UTC()
		switch {
		case next.Active():
			if claim != nil && claim.AppointmentID != a.ID {
				return errClaimTaken
			}
			if claim == nil {
				if err := tx.CreateClaim(ctx, claimFor(a, now)); err != nil {
					return err
				}
			}
		case claim != nil && claim.AppointmentID == a.ID:
			if err := tx.ReleaseClaim(ctx, professionalID, a.Key()); err != nil {
				return err
			}
		}

		a.Status = next
		a.UpdatedAt = now
		return tx.SaveAppointment(ctx, a)
	})
	if errors.Is(err, errClaimTaken) {
		d = Decision{Reason: reasonLocked}
		return d, fmt.Errorf("%w: %s", ErrLockedTransition, d.Reason)
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

// checkQuota applies the free limit when an appointment dated in the
// current month becomes confirmed.
func (s *TransitionService) checkQuota(ctx context.Context, professionalID string, a *Appointment, ledger []Appointment) error {
	first, last := MonthWindow(s.now())
	if a.Date < first || a.Date > last {
		return nil
	}
	p, err := s.professionalByID(ctx, professionalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Ledger entries without a profile are treated as free.
			p = &professional.Professional{ID: professionalID, Plan: professional.PlanFree}
		} else {
			return err
		}
	}
	if used := ConfirmedCountThisMonth(ledger, s.now()); !s.quota.Allowed(p.Plan, used) {
		return fmt.Errorf("%w: %d of %d confirmed appointments used this month", ErrQuotaExceeded, used, s.quota.Limit)
	}
	return nil
}

// Locked returns the ids of appointments that may not change status.
func (s *TransitionService) Locked(ctx context.Context, professionalID string) ([]string, error) {
	ledger, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	return sortedIDs(LockedAppointmentIDs(ledger)), nil
}
