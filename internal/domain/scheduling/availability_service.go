package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenda/agenda/internal/domain/professional"
)

// AvailabilityService edits and reads the declared slots.
type AvailabilityService struct {
	deps
}

// AddSlot declares slot on date. Declaring a time twice is rejected.
func (s *AvailabilityService) AddSlot(ctx context.Context, professionalID, date string, slot Slot) (*AvailabilityDay, error) {
	day, err := s.addSlot(ctx, professionalID, date, slot)
	s.observe("add", professionalID, date, slot.Time, err)
	return day, err
}

func (s *AvailabilityService) addSlot(ctx context.Context, professionalID, date string, slot Slot) (*AvailabilityDay, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	slot.Time = strings.TrimSpace(slot.Time)
	if !ValidTime(slot.Time) {
		return nil, fmt.Errorf("%w: time must be HH:mm, got %q", ErrValidation, slot.Time)
	}
	m, err := ParseModality(string(slot.Modality))
	if err != nil {
		return nil, err
	}
	slot.Modality = m
	if len(slot.Locations) > 0 && m != ModalityInPerson {
		return nil, fmt.Errorf("%w: locations only apply to in-person slots", ErrValidation)
	}
	if len(slot.Locations) > 0 {
		p, err := s.professionalByID(ctx, professionalID)
		if err != nil {
			return nil, err
		}
		if err := checkLocations(p, slot.Locations); err != nil {
			return nil, err
		}
	}
	slot = slot.normalized()

	var saved AvailabilityDay
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		day, err := tx.Day(ctx, professionalID, date)
		if err != nil {
			return err
		}
		if day == nil {
			day = &AvailabilityDay{ProfessionalID: professionalID, Date: date}
		}
		if _, exists := day.SlotAt(slot.Time); exists {
			return fmt.Errorf("%w: %s on %s is already declared", ErrSlotUnavailable, slot.Time, date)
		}
		saved = day.WithSlot(slot)
		saved.UpdatedAt = s.now().UTC()
		return tx.SaveDay(ctx, &saved)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func checkLocations(p *professional.Professional, locs []string) error {
	for _, l := range locs {
		if _, ok := p.Location(l); !ok {
			return fmt.Errorf("%w: unknown location %q", ErrValidation, l)
		}
	}
	return nil
}

// RemoveSlot withdraws a declared time unless an active appointment holds
// it. The day document goes away with its last slot.
func (s *AvailabilityService) RemoveSlot(ctx context.Context, professionalID, date, t string) (*AvailabilityDay, error) {
	day, err := s.removeSlot(ctx, professionalID, date, t)
	s.observe("remove", professionalID, date, t, err)
	return day, err
}

func (s *AvailabilityService) removeSlot(ctx context.Context, professionalID, date, t string) (*AvailabilityDay, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	if !ValidTime(t) {
		return nil, fmt.Errorf("%w: time must be HH:mm, got %q", ErrValidation, t)
	}

	sameDay, err := s.repo.AppointmentsOn(ctx, professionalID, date)
	if err != nil {
		return nil, err
	}
	for i := range sameDay {
		if sameDay[i].Time == t && sameDay[i].Status.Active() {
			return nil, fmt.Errorf("%w: %s on %s has an active appointment", ErrSlotUnavailable, t, date)
		}
	}

	key := SlotKey{Date: date, Time: t}
	var saved AvailabilityDay
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		day, err := tx.Day(ctx, professionalID, date)
		if err != nil {
			return err
		}
		claim, err := tx.Claim(ctx, professionalID, key)
		if err != nil {
			return err
		}
		if _, ok := day.SlotAt(t); !ok {
			return fmt.Errorf("%w: %s on %s is not declared", ErrNotFound, t, date)
		}
		if claim != nil {
			return fmt.Errorf("%w: %s on %s has an active appointment", ErrSlotUnavailable, t, date)
		}
		saved = day.WithoutTime(t)
		saved.UpdatedAt = s.now().UTC()
		return tx.SaveDay(ctx, &saved)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *AvailabilityService) observe(op, professionalID, date, t string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	s.metrics.ObserveSlotEdit(op, outcome)
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("professional_id", professionalID).Str("date", date).Str("time", t).Str("op", op).Msg("availability edit")
}

// GetDay returns the declared slots of date, empty when none are declared.
func (s *AvailabilityService) GetDay(ctx context.Context, professionalID, date string) (*AvailabilityDay, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	day, err := s.repo.Day(ctx, professionalID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		day = &AvailabilityDay{ProfessionalID: professionalID, Date: date, Slots: []Slot{}}
	}
	return day, nil
}

// ListDays returns declared days within [from, to]; either bound may be empty.
func (s *AvailabilityService) ListDays(ctx context.Context, professionalID, from, to string) ([]AvailabilityDay, error) {
	if from != "" && !ValidDate(from) {
		return nil, fmt.Errorf("%w: invalid from date %q", ErrValidation, from)
	}
	if to != "" && !ValidDate(to) {
		return nil, fmt.Errorf("%w: invalid to date %q", ErrValidation, to)
	}
	days, err := s.repo.Days(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityDay, 0, len(days))
	for _, d := range days {
		if (from == "" || d.Date >= from) && (to == "" || d.Date <= to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *AvailabilityService) DayView(ctx context.Context, professionalID, date string) (DayView, error) {
	if !ValidDate(date) {
		return DayView{}, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	day, err := s.repo.Day(ctx, professionalID, date)
	if err != nil {
		return DayView{}, err
	}
	appts, err := s.repo.AppointmentsOn(ctx, professionalID, date)
	if err != nil {
		return DayView{}, err
	}
	return Reconcile(date, day, appts), nil
}

// PublicSlot is a free time as shown on the booking page. Reclaimed times
// were freed by a cancellation but are no longer declared, so they cannot be
// booked until the professional declares them again.
type PublicSlot struct {
	Time      string   `json:"time"`
	Modality  Modality `json:"modality,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Reclaimed bool     `json:"reclaimed,omitempty"`
	Bookable  bool     `json:"bookable"`
}

// PublicFreeSlots lists the free slots of a professional for date.
// Reclaimed times carry no constraints and are marked as not bookable.
func (s *AvailabilityService) PublicFreeSlots(ctx context.Context, slug, date string) ([]PublicSlot, error) {
	p, err := s.professionalBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !ValidDate(date) {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	day, err := s.repo.Day(ctx, p.ID, date)
	if err != nil {
		return nil, err
	}
	appts, err := s.repo.AppointmentsOn(ctx, p.ID, date)
	if err != nil {
		return nil, err
	}
	free := FreeSlotTimes(date, day, appts)
	out := make([]PublicSlot, 0, len(free))
	for _, t := range free {
		slot, declared := day.SlotAt(t)
		if !declared {
			out = append(out, PublicSlot{Time: t, Reclaimed: true})
			continue
		}
		out = append(out, PublicSlot{Time: slot.Time, Modality: slot.Modality, Locations: slot.Locations, Bookable: true})
	}
	return out, nil
}
