package scheduling

import (
	"fmt"
	"testing"
	"time"

	"github.com/agenda/agenda/internal/domain/professional"
)

func TestIsAllowed_Boundary(t *testing.T) {
	if !IsAllowed(professional.PlanFree, 9) {
		t.Error("9 confirmed should be allowed on free")
	}
	if IsAllowed(professional.PlanFree, 10) {
		t.Error("10 confirmed should be refused on free")
	}
	for _, n := range []int{0, 10, 1000} {
		if !IsAllowed(professional.PlanPro, n) {
			t.Errorf("pro should always be allowed (count %d)", n)
		}
	}
	if IsAllowed(professional.Plan("legacy"), 10) {
		t.Error("unknown plans are treated as free")
	}
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		ref         time.Time
		first, last string
	}{
		{time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC), "2026-02-01", "2026-02-28"},
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "2024-02-01", "2024-02-29"},
		{time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC), "2026-04-01", "2026-04-30"},
		{time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), "2026-12-01", "2026-12-31"},
	}
	for _, tt := range tests {
		first, last := MonthWindow(tt.ref)
		if first != tt.first || last != tt.last {
			t.Errorf("MonthWindow(%s) = %s..%s, want %s..%s", tt.ref.Format(time.DateOnly), first, last, tt.first, tt.last)
		}
	}
}

// The window ends on the real last day of the month: a short month does
// not pick up early days of the next one.
func TestConfirmedCountThisMonth_TrueMonthEnd(t *testing.T) {
	appts := []Appointment{
		appt("jan", "2026-01-31", "10:00", StatusConfirmed),
		appt("feb1", "2026-02-01", "10:00", StatusConfirmed),
		appt("feb28", "2026-02-28", "10:00", StatusConfirmed),
		appt("mar1", "2026-03-01", "10:00", StatusConfirmed),
		appt("pending", "2026-02-15", "10:00", StatusPending),
		appt("cancelled", "2026-02-16", "10:00", StatusCancelled),
	}
	if got := ConfirmedCountThisMonth(appts, testNow); got != 2 {
		t.Errorf("expected 2 confirmed in February, got %d", got)
	}
}

func TestEnforcerStatus(t *testing.T) {
	var appts []Appointment
	for i := 0; i < 4; i++ {
		appts = append(appts, appt(fmt.Sprintf("a%d", i), "2026-02-1"+fmt.Sprint(i), "10:00", StatusConfirmed))
	}
	e := Enforcer{Limit: 3}

	free := e.Status(professional.PlanFree, appts, testNow)
	if free.Used != 4 || free.Limit != 3 || free.Remaining != 0 || free.Allowed {
		t.Errorf("unexpected free status %+v", free)
	}
	if free.WindowStart != "2026-02-01" || free.WindowEnd != "2026-02-28" {
		t.Errorf("unexpected window %s..%s", free.WindowStart, free.WindowEnd)
	}

	pro := e.Status(professional.PlanPro, appts, testNow)
	if pro.Limit != Unlimited || pro.Remaining != Unlimited || !pro.Allowed {
		t.Errorf("unexpected pro status %+v", pro)
	}

	empty := Enforcer{Limit: FreeTierMonthlyLimit}.Status("", nil, testNow)
	if empty.Plan != professional.PlanFree || empty.Remaining != 10 || !empty.Allowed {
		t.Errorf("unexpected empty status %+v", empty)
	}
}
