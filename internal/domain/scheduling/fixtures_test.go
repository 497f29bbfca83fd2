package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda/agenda/internal/domain/professional"
	"github.com/agenda/agenda/internal/platform/docstore"
	"github.com/agenda/agenda/internal/platform/docstore/memstore"
)

const (
	testPro  = "pro-1"
	testSlug = "dra-ana"
	testDate = "2026-02-10"
)

var testNow = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	pros  *professional.Service
	store docstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New(), DefaultOptions())
}

func newFixtureWithStore(t *testing.T, store docstore.Store, opts Options) *fixture {
	t.Helper()
	pros := professional.NewService(professional.NewRepo(store), zerolog.Nop())
	centroValue := int64(25000)
	_, err := pros.UpdateProfile(context.Background(), testPro, professional.ProfileUpdate{
		Slug:          testSlug,
		Name:          "Dra. Ana",
		OnlineValue:   15000,
		InPersonValue: 20000,
		Locations: []professional.Location{
			{ID: "centro", Name: "Centro", Value: &centroValue},
			{ID: "sul", Name: "Zona Sul"},
		},
	})
	if err != nil {
		t.Fatalf("create professional: %v", err)
	}

	svc := NewService(NewRepo(store), pros, opts, zerolog.Nop(), nil)
	svc.setClock(func() time.Time { return testNow })
	return &fixture{svc: svc, pros: pros, store: store}
}

func (f *fixture) declare(t *testing.T, date string, slots ...Slot) {
	t.Helper()
	for _, s := range slots {
		if _, err := f.svc.Availability.AddSlot(context.Background(), testPro, date, s); err != nil {
			t.Fatalf("declare %s %s: %v", date, s.Time, err)
		}
	}
}

// seed writes an appointment straight to the store, bypassing the claim
// bookkeeping, to reproduce historical ledgers.
func (f *fixture) seed(t *testing.T, a Appointment) {
	t.Helper()
	if a.ProfessionalID == "" {
		a.ProfessionalID = testPro
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = testNow
	}
	if err := f.store.Set(context.Background(), appointmentCollection, a.ID, a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
}

func (f *fixture) ledger(t *testing.T) []Appointment {
	t.Helper()
	appts, err := f.svc.repo.Appointments(context.Background(), testPro)
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	return appts
}

func publicRequest(date, tm string) BookingRequest {
	return BookingRequest{
		ProfessionalSlug: testSlug,
		Date:             date,
		Time:             tm,
		PatientName:      "Maria Silva",
		PatientContact:   "+55 11 91234-5678",
	}
}

func appt(id, date, tm string, st Status) Appointment {
	return Appointment{ID: id, ProfessionalID: testPro, Date: date, Time: tm, Status: st}
}
