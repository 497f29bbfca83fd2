package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenda/agenda/internal/domain/professional"
)

// BookingRequest is a public booking. There is no value field: the price
// is always derived from the professional's settings.
type BookingRequest struct {
	ProfessionalSlug string   `json:"professionalSlug"`
	Date             string   `json:"date"`
	Time             string   `json:"time"`
	PatientName      string   `json:"patientName"`
	PatientContact   string   `json:"patientContact"`
	Modality         Modality `json:"modality,omitempty"`
	Location         string   `json:"location,omitempty"`
}

// DirectBookingRequest is a booking made by the professional. Value, when
// set, overrides the derived price.
type DirectBookingRequest struct {
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	PatientName    string   `json:"patientName"`
	PatientContact string   `json:"patientContact"`
	Modality       Modality `json:"modality,omitempty"`
	Location       string   `json:"location,omitempty"`
	Value          *int64   `json:"value,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

type BookingResult struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

// Coordinator is the only writer of new appointments.
type Coordinator struct {
	deps
	EnforceQuotaOnDirect bool
}

type candidate struct {
	origin   Origin
	date     string
	time     string
	name     string
	contact  string
	modality Modality
	location string
	value    *int64
	notes    string
}

// CreateBooking books a slot from the public page. The checks run in a
// fixed order and the first failure is returned: professional, input,
// quota, declared slot, occupancy, then modality and location.
func (c *Coordinator) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.CreateBooking")
	defer span.End()

	res, err := c.createBooking(ctx, req)
	c.finish(span, OriginPublic, res, err)
	return res, err
}

func (c *Coordinator) createBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	p, err := c.professionalBySlug(ctx, req.ProfessionalSlug)
	if err != nil {
		return nil, err
	}
	return c.book(ctx, p, candidate{
		origin:   OriginPublic,
		date:     req.Date,
		time:     req.Time,
		name:     req.PatientName,
		contact:  req.PatientContact,
		modality: req.Modality,
		location: req.Location,
	}, true)
}

// CreateDirectBooking books a slot on behalf of the authenticated
// professional. The quota applies when EnforceQuotaOnDirect is set.
func (c *Coordinator) CreateDirectBooking(ctx context.Context, professionalID string, req DirectBookingRequest) (*BookingResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.CreateDirectBooking")
	defer span.End()

	res, err := c.createDirect(ctx, professionalID, req)
	c.finish(span, OriginDirect, res, err)
	return res, err
}

func (c *Coordinator) createDirect(ctx context.Context, professionalID string, req DirectBookingRequest) (*BookingResult, error) {
	p, err := c.professionalByID(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	return c.book(ctx, p, candidate{
		origin:   OriginDirect,
		date:     req.Date,
		time:     req.Time,
		name:     req.PatientName,
		contact:  req.PatientContact,
		modality: req.Modality,
		location: req.Location,
		value:    req.Value,
		notes:    req.Notes,
	}, c.EnforceQuotaOnDirect)
}

func (c *Coordinator) finish(span trace.Span, origin Origin, res *BookingResult, err error) {
	outcome := "created"
	if err != nil {
		outcome = ErrorKind(err)
	}
	span.SetAttributes(
		attribute.String("booking.origin", string(origin)),
		attribute.String("booking.outcome", outcome),
	)
	c.metrics.ObserveBooking(string(origin), outcome)

	if err != nil {
		if errors.Is(err, ErrPersistence) {
			span.SetStatus(codes.Error, outcome)
			span.RecordError(err)
			c.logger.Error().Err(err).Str("origin", string(origin)).Msg("booking failed")
			return
		}
		c.logger.Warn().Err(err).Str("origin", string(origin)).Str("kind", outcome).Msg("booking rejected")
		return
	}
	c.logger.Info().Str("origin", string(origin)).Str("appointment_id", res.AppointmentID).Msg("booking created")
}

func (c *Coordinator) book(ctx context.Context, p *professional.Professional, cand candidate, enforceQuota bool) (*BookingResult, error) {
	if err := cand.validate(); err != nil {
		return nil, err
	}

	if enforceQuota {
		ledger, err := c.repo.Appointments(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if used := ConfirmedCountThisMonth(ledger, c.now()); !c.quota.Allowed(p.Plan, used) {
			return nil, fmt.Errorf("%w: %d of %d confirmed appointments used this month", ErrQuotaExceeded, used, c.quota.Limit)
		}
	}

	day, err := c.repo.Day(ctx, p.ID, cand.date)
	if err != nil {
		return nil, err
	}
	slot, ok := day.SlotAt(cand.time)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s is not in the agenda", ErrSlotUnavailable, cand.time, cand.date)
	}

	sameDay, err := c.repo.AppointmentsOn(ctx, p.ID, cand.date)
	if err != nil {
		return nil, err
	}
	for i := range sameDay {
		if sameDay[i].Time == cand.time && sameDay[i].Status.Active() {
			return nil, fmt.Errorf("%w: %s on %s is already booked", ErrSlotUnavailable, cand.time, cand.date)
		}
	}

	modality, location, err := resolvePlace(slot, p, cand.modality, cand.location)
	if err != nil {
		return nil, err
	}
	value := priceFor(p, modality, location)
	if cand.value != nil {
		value = *cand.value
	}

	now := c.now().UTC()
	appt := &Appointment{
		ID:             uuid.NewString(),
		ProfessionalID: p.ID,
		Date:           cand.date,
		Time:           cand.time,
		PatientName:    cand.name,
		PatientContact: cand.contact,
		Value:          value,
		Modality:       modality,
		Location:       location,
		Status:         StatusPending,
		Origin:         cand.origin,
		Notes:          cand.notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = c.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Day(ctx, p.ID, cand.date)
		if err != nil {
			return err
		}
		if _, ok := current.SlotAt(cand.time); !ok {
			return fmt.Errorf("%w: %s on %s was removed from the agenda", ErrSlotUnavailable, cand.time, cand.date)
		}
		if err := tx.CreateClaim(ctx, claimFor(appt, now)); err != nil {
			return err
		}
		return tx.CreateAppointment(ctx, appt)
	})
	if errors.Is(err, errClaimTaken) {
		return nil, fmt.Errorf("%w: %s on %s is already booked", ErrSlotUnavailable, cand.time, cand.date)
	}
	if err != nil {
		return nil, err
	}
	return &BookingResult{Success: true, AppointmentID: appt.ID}, nil
}

const maxNameLen = 120

func (cand *candidate) validate() error {
	cand.date = strings.TrimSpace(cand.date)
	cand.time = strings.TrimSpace(cand.time)
	cand.name = strings.TrimSpace(cand.name)
	cand.contact = strings.TrimSpace(cand.contact)
	cand.location = strings.TrimSpace(cand.location)

	if !ValidDate(cand.date) {
		return fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrValidation, cand.date)
	}
	if !ValidTime(cand.time) {
		return fmt.Errorf("%w: time must be HH:mm, got %q", ErrValidation, cand.time)
	}
	if cand.name == "" || len(cand.name) > maxNameLen {
		return fmt.Errorf("%w: patient name is required (at most %d characters)", ErrValidation, maxNameLen)
	}
	if !ValidContact(cand.contact) {
		return fmt.Errorf("%w: patient contact must be a phone number or an email address", ErrValidation)
	}
	m, err := ParseModality(string(cand.modality))
	if err != nil {
		return err
	}
	cand.modality = m
	if cand.value != nil && *cand.value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrValidation)
	}
	return nil
}

// ValidContact accepts an email address or a phone number with 8 to 15
// digits. Spaces, dashes, dots, parentheses and a leading + are ignored.
func ValidContact(s string) bool {
	s = strings.TrimSpace(s)
	if at := strings.IndexByte(s, '@'); at > 0 {
		return at < len(s)-1 && !strings.ContainsAny(s, " \t") && strings.Contains(s[at:], ".")
	}
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 15
}

// resolvePlace checks the requested modality and location against the slot.
// A slot without a modality accepts either; when nothing is requested the
// appointment is online. In-person bookings must name one of the slot's
// locations, or one of the professional's when the slot lists none; a
// single candidate is picked automatically.
func resolvePlace(slot Slot, p *professional.Professional, modality Modality, location string) (Modality, string, error) {
	if slot.Modality != ModalityAny {
		if modality != ModalityAny && modality != slot.Modality {
			return "", "", fmt.Errorf("%w: slot %s only accepts %s appointments", ErrConstraintMismatch, slot.Time, slot.Modality)
		}
		modality = slot.Modality
	}
	if modality == ModalityAny {
		modality = ModalityOnline
	}

	if modality == ModalityOnline {
		if location != "" {
			return "", "", fmt.Errorf("%w: online appointments have no location", ErrConstraintMismatch)
		}
		return modality, "", nil
	}

	allowed := slot.Locations
	if len(allowed) == 0 {
		for _, l := range p.Locations {
			allowed = append(allowed, l.ID)
		}
	}
	if location == "" {
		switch len(allowed) {
		case 0:
			return modality, "", nil
		case 1:
			return modality, allowed[0], nil
		default:
			return "", "", fmt.Errorf("%w: choose one of the locations %s", ErrConstraintMismatch, strings.Join(allowed, ", "))
		}
	}
	for _, l := range allowed {
		if l == location {
			return modality, location, nil
		}
	}
	return "", "", fmt.Errorf("%w: location %q is not offered for this slot", ErrConstraintMismatch, location)
}

// priceFor returns the location override when set, else the modality
// default.
func priceFor(p *professional.Professional, modality Modality, location string) int64 {
	if modality == ModalityOnline {
		return p.OnlineValue
	}
	if l, ok := p.Location(location); ok && l.Value != nil {
		return *l.Value
	}
	return p.InPersonValue
}
