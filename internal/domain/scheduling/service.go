package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/agenda/agenda/internal/domain/professional"
	"github.com/agenda/agenda/internal/platform/telemetry"
)

var tracer = otel.Tracer("agenda/scheduling")

// Directory resolves professionals. *professional.Service implements it.
type Directory interface {
	Get(ctx context.Context, id string) (*professional.Professional, error)
	BySlug(ctx context.Context, slug string) (*professional.Professional, error)
}

type Options struct {
	// FreeLimit is the monthly confirmed-appointment limit of free plans.
	FreeLimit int
	// EnforceQuotaOnDirect applies the quota to bookings made by the
	// professional as well as public ones.
	EnforceQuotaOnDirect bool
}

func DefaultOptions() Options {
	return Options{FreeLimit: FreeTierMonthlyLimit, EnforceQuotaOnDirect: true}
}

// deps is shared by the scheduling services.
type deps struct {
	repo    Repository
	pros    Directory
	quota   Enforcer
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func (d *deps) professionalByID(ctx context.Context, id string) (*professional.Professional, error) {
	p, err := d.pros.Get(ctx, id)
	return p, translateProfessionalErr(err, "professional "+id)
}

func (d *deps) professionalBySlug(ctx context.Context, slug string) (*professional.Professional, error) {
	p, err := d.pros.BySlug(ctx, slug)
	return p, translateProfessionalErr(err, "professional "+slug)
}

func translateProfessionalErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, professional.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	default:
		return persistence("load "+what, err)
	}
}

// Service groups the scheduling operations behind the HTTP handler.
type Service struct {
	deps
	Bookings     *Coordinator
	Transitions  *TransitionService
	Availability *AvailabilityService
}

func NewService(repo Repository, pros Directory, opts Options, logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	d := deps{
		repo:    repo,
		pros:    pros,
		quota:   Enforcer{Limit: opts.FreeLimit},
		logger:  logger.With().Str("component", "scheduling").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
	return &Service{
		deps:         d,
		Bookings:     &Coordinator{deps: d, EnforceQuotaOnDirect: opts.EnforceQuotaOnDirect},
		Transitions:  &TransitionService{deps: d},
		Availability: &AvailabilityService{deps: d},
	}
}

// setClock replaces the clock of every sub-service.
func (s *Service) setClock(now func() time.Time) {
	s.now = now
	s.Bookings.now = now
	s.Transitions.now = now
	s.Availability.now = now
}

type AppointmentFilter struct {
	From   string
	To     string
	Status Status
}

func (f AppointmentFilter) validate() error {
	if f.From != "" && !ValidDate(f.From) {
		return fmt.Errorf("%w: invalid from date %q", ErrValidation, f.From)
	}
	if f.To != "" && !ValidDate(f.To) {
		return fmt.Errorf("%w: invalid to date %q", ErrValidation, f.To)
	}
	return nil
}

func (f AppointmentFilter) match(a *Appointment) bool {
	if f.From != "" && a.Date < f.From {
		return false
	}
	if f.To != "" && a.Date > f.To {
		return false
	}
	return f.Status == "" || a.Status == f.Status
}

// ListAppointments returns the matching part of the ledger ordered by date
// and time.
func (s *Service) ListAppointments(ctx context.Context, professionalID string, f AppointmentFilter) ([]Appointment, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	appts, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(appts))
	for i := range appts {
		if f.match(&appts[i]) {
			out = append(out, appts[i])
		}
	}
	return out, nil
}

func (s *Service) Quota(ctx context.Context, professionalID string) (QuotaStatus, error) {
	p, err := s.professionalByID(ctx, professionalID)
	if err != nil {
		return QuotaStatus{}, err
	}
	appts, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return QuotaStatus{}, err
	}
	return s.quota.Status(p.Plan, appts, s.now()), nil
}

func (s *Service) DayStats(ctx context.Context, professionalID, date string) (DayStats, error) {
	if !ValidDate(date) {
		return DayStats{}, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	day, err := s.repo.Day(ctx, professionalID, date)
	if err != nil {
		return DayStats{}, err
	}
	appts, err := s.repo.AppointmentsOn(ctx, professionalID, date)
	if err != nil {
		return DayStats{}, err
	}
	return ComputeDayStats(date, day, appts), nil
}

func (s *Service) PeriodStats(ctx context.Context, professionalID, from, to string) (PeriodSummary, error) {
	if _, _, err := parseRange(from, to); err != nil {
		return PeriodSummary{}, err
	}
	days, err := s.repo.Days(ctx, professionalID)
	if err != nil {
		return PeriodSummary{}, err
	}
	byDate := make(map[string]*AvailabilityDay, len(days))
	for i := range days {
		if days[i].Date >= from && days[i].Date <= to {
			byDate[days[i].Date] = &days[i]
		}
	}
	appts, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return PeriodSummary{}, err
	}
	return PeriodStats(from, to, byDate, appts)
}

// Conflicts lists slots where stored data holds more than one active
// appointment. Such data predates slot claims.
func (s *Service) Conflicts(ctx context.Context, professionalID string) ([]SlotKey, error) {
	appts, err := s.repo.Appointments(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	conflicts := ActiveConflicts(appts)
	if conflicts == nil {
		conflicts = []SlotKey{}
	}
	return conflicts, nil
}

const maxNotesLen = 2000

// UpdateNotes replaces the administrative notes of an appointment.
func (s *Service) UpdateNotes(ctx context.Context, professionalID, appointmentID, notes string) (*Appointment, error) {
	if len(notes) > maxNotesLen {
		return nil, fmt.Errorf("%w: notes longer than %d characters", ErrValidation, maxNotesLen)
	}
	var saved *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.Appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.ProfessionalID != professionalID {
			return fmt.Errorf("%w: appointment %s", ErrNotFound, appointmentID)
		}
		a.Notes = notes
		a.UpdatedAt = s.now().UTC()
		saved = a
		return tx.SaveAppointment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
