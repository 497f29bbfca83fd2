package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agenda/agenda/internal/platform/docstore"
)

const (
	availabilityCollection = "availability"
	appointmentCollection  = "appointments"
	claimCollection        = "slot_claims"
)

// Repository reads the availability index and the appointment ledger and
// opens transactions over them. Storage failures are returned wrapped in
// ErrPersistence.
type Repository interface {
	// Day returns nil when nothing is declared for date.
	Day(ctx context.Context, professionalID, date string) (*AvailabilityDay, error)
	Days(ctx context.Context, professionalID string) ([]AvailabilityDay, error)
	Appointment(ctx context.Context, id string) (*Appointment, error)
	// Appointments returns the whole ledger of a professional ordered by
	// date, time and creation.
	Appointments(ctx context.Context, professionalID string) ([]Appointment, error)
	AppointmentsOn(ctx context.Context, professionalID, date string) ([]Appointment, error)
	// InTx runs fn once. A claim that already exists surfaces as
	// errClaimTaken, whether the backend reports it from the write or from
	// the commit.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view. Reads must precede writes.
type Tx interface {
	Day(ctx context.Context, professionalID, date string) (*AvailabilityDay, error)
	Appointment(ctx context.Context, id string) (*Appointment, error)
	Claim(ctx context.Context, professionalID string, key SlotKey) (*SlotClaim, error)

	// SaveDay writes day, or deletes it when it has no slots left.
	SaveDay(ctx context.Context, day *AvailabilityDay) error
	CreateAppointment(ctx context.Context, a *Appointment) error
	SaveAppointment(ctx context.Context, a *Appointment) error
	CreateClaim(ctx context.Context, c *SlotClaim) error
	ReleaseClaim(ctx context.Context, professionalID string, key SlotKey) error
}

type docRepo struct {
	store docstore.Store
}

func NewRepo(store docstore.Store) Repository {
	return &docRepo{store: store}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func getDay(ctx context.Context, get func(ctx context.Context, collection, id string, dst interface{}) error, professionalID, date string) (*AvailabilityDay, error) {
	var day AvailabilityDay
	if err := get(ctx, availabilityCollection, DayID(professionalID, date), &day); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, persistence("load availability "+date, err)
	}
	day.Slots = normalizeSlots(day.Slots)
	if day.ProfessionalID == "" {
		day.ProfessionalID = professionalID
	}
	if day.Date == "" {
		day.Date = date
	}
	return &day, nil
}

func getAppointment(ctx context.Context, get func(ctx context.Context, collection, id string, dst interface{}) error, id string) (*Appointment, error) {
	var a Appointment
	if err := get(ctx, appointmentCollection, id, &a); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
		}
		return nil, persistence("load appointment "+id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}

func (r *docRepo) Day(ctx context.Context, professionalID, date string) (*AvailabilityDay, error) {
	return getDay(ctx, r.store.Get, professionalID, date)
}

func (r *docRepo) Days(ctx context.Context, professionalID string) ([]AvailabilityDay, error) {
	docs, err := r.store.Query(ctx, availabilityCollection, docstore.Eq("professionalId", professionalID))
	if err != nil {
		return nil, persistence("list availability", err)
	}
	days := make([]AvailabilityDay, 0, len(docs))
	for _, d := range docs {
		var day AvailabilityDay
		if err := d.Decode(&day); err != nil {
			return nil, persistence("decode availability "+d.ID, err)
		}
		day.Slots = normalizeSlots(day.Slots)
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (r *docRepo) Appointment(ctx context.Context, id string) (*Appointment, error) {
	return getAppointment(ctx, r.store.Get, id)
}

func (r *docRepo) Appointments(ctx context.Context, professionalID string) ([]Appointment, error) {
	return r.queryAppointments(ctx, docstore.Eq("professionalId", professionalID))
}

func (r *docRepo) AppointmentsOn(ctx context.Context, professionalID, date string) ([]Appointment, error) {
	return r.queryAppointments(ctx, docstore.Eq("professionalId", professionalID), docstore.Eq("date", date))
}

func (r *docRepo) queryAppointments(ctx context.Context, filters ...docstore.Filter) ([]Appointment, error) {
	docs, err := r.store.Query(ctx, appointmentCollection, filters...)
	if err != nil {
		return nil, persistence("query appointments", err)
	}
	out := make([]Appointment, 0, len(docs))
	for _, d := range docs {
		var a Appointment
		if err := d.Decode(&a); err != nil {
			return nil, persistence("decode appointment "+d.ID, err)
		}
		if a.ID == "" {
			a.ID = d.ID
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func (r *docRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, dtx docstore.Tx) error {
		return fn(ctx, &docTx{tx: dtx})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrAlreadyExists):
		return errClaimTaken
	case isDomainError(err), errors.Is(err, errClaimTaken):
		return err
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%w: concurrent modification, try again", ErrPersistence)
	default:
		return persistence("transaction", err)
	}
}

type docTx struct {
	tx docstore.Tx
}

func (t *docTx) Day(ctx context.Context, professionalID, date string) (*AvailabilityDay, error) {
	return getDay(ctx, t.tx.Get, professionalID, date)
}

func (t *docTx) Appointment(ctx context.Context, id string) (*Appointment, error) {
	return getAppointment(ctx, t.tx.Get, id)
}

func (t *docTx) Claim(ctx context.Context, professionalID string, key SlotKey) (*SlotClaim, error) {
	var c SlotClaim
	if err := t.tx.Get(ctx, claimCollection, ClaimID(professionalID, key), &c); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, persistence("load slot claim", err)
	}
	return &c, nil
}

func (t *docTx) SaveDay(ctx context.Context, day *AvailabilityDay) error {
	id := DayID(day.ProfessionalID, day.Date)
	if day.Empty() {
		return t.tx.Delete(ctx, availabilityCollection, id)
	}
	return t.tx.Set(ctx, availabilityCollection, id, day)
}

func (t *docTx) CreateAppointment(ctx context.Context, a *Appointment) error {
	return t.tx.Create(ctx, appointmentCollection, a.ID, a)
}

func (t *docTx) SaveAppointment(ctx context.Context, a *Appointment) error {
	return t.tx.Set(ctx, appointmentCollection, a.ID, a)
}

// CreateClaim passes backend errors through untouched so InTx can recognise
// a duplicate however the backend reports it.
func (t *docTx) CreateClaim(ctx context.Context, c *SlotClaim) error {
	return t.tx.Create(ctx, claimCollection, ClaimID(c.ProfessionalID, SlotKey{Date: c.Date, Time: c.Time}), c)
}

func (t *docTx) ReleaseClaim(ctx context.Context, professionalID string, key SlotKey) error {
	return t.tx.Delete(ctx, claimCollection, ClaimID(professionalID, key))
}
