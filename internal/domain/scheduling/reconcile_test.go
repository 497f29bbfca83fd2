package scheduling

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func declaredDay(times ...string) *AvailabilityDay {
	d := &AvailabilityDay{ProfessionalID: testPro, Date: testDate}
	for _, t := range times {
		d.Slots = append(d.Slots, Slot{Time: t})
	}
	return d
}

func TestReconcile_NoAppointments(t *testing.T) {
	day := declaredDay("09:00", "10:00")

	view := Reconcile(testDate, day, nil)
	if !reflect.DeepEqual(view.Free, []string{"09:00", "10:00"}) {
		t.Errorf("expected both slots free, got %v", view.Free)
	}
	if view.OccupancyRate != 0 {
		t.Errorf("expected occupancy 0, got %d", view.OccupancyRate)
	}
}

func TestReconcile_ConfirmedSlot(t *testing.T) {
	day := declaredDay("09:00", "10:00")
	appts := []Appointment{appt("a1", testDate, "10:00", StatusConfirmed)}

	view := Reconcile(testDate, day, appts)
	if !reflect.DeepEqual(view.Free, []string{"09:00"}) {
		t.Errorf("expected [09:00] free, got %v", view.Free)
	}
	if !reflect.DeepEqual(view.Occupied, []string{"10:00"}) {
		t.Errorf("expected [10:00] occupied, got %v", view.Occupied)
	}
	if view.OccupancyRate != 50 {
		t.Errorf("expected occupancy 50, got %d", view.OccupancyRate)
	}
}

func TestReconcile_ReclaimedAfterRemoval(t *testing.T) {
	day := declaredDay("09:00")
	appts := []Appointment{appt("a1", testDate, "10:00", StatusCancelled)}

	free := FreeSlotTimes(testDate, day, appts)
	if !reflect.DeepEqual(free, []string{"09:00", "10:00"}) {
		t.Errorf("expected cancelled 10:00 to be reclaimed, got %v", free)
	}
	view := Reconcile(testDate, day, appts)
	if !reflect.DeepEqual(view.Reclaimed, []string{"10:00"}) {
		t.Errorf("expected reclaimed [10:00], got %v", view.Reclaimed)
	}
	if view.Total != 2 {
		t.Errorf("expected total 2, got %d", view.Total)
	}
}

func TestReconcile_NoDayStillReclaims(t *testing.T) {
	appts := []Appointment{appt("a1", testDate, "08:00", StatusCancelled)}
	if got := FreeSlotTimes(testDate, nil, appts); !reflect.DeepEqual(got, []string{"08:00"}) {
		t.Errorf("got %v", got)
	}
}

func TestReconcile_CancelledAndDeclaredCountedOnce(t *testing.T) {
	day := declaredDay("09:00", "10:00")
	appts := []Appointment{
		appt("a1", testDate, "10:00", StatusCancelled),
		appt("a2", testDate, "10:00", StatusCancelled),
	}
	view := Reconcile(testDate, day, appts)
	if view.Total != 2 {
		t.Errorf("expected total 2, got %d", view.Total)
	}
	if len(view.Reclaimed) != 0 {
		t.Errorf("declared time must not be reported as reclaimed, got %v", view.Reclaimed)
	}
	if !reflect.DeepEqual(view.Free, []string{"09:00", "10:00"}) {
		t.Errorf("got %v", view.Free)
	}
}

func TestReconcile_RebookedCancellationNotReclaimed(t *testing.T) {
	appts := []Appointment{
		appt("a1", testDate, "10:00", StatusCancelled),
		appt("a2", testDate, "10:00", StatusPending),
	}
	view := Reconcile(testDate, nil, appts)
	if len(view.Free) != 0 {
		t.Errorf("expected nothing free, got %v", view.Free)
	}
	if view.OccupancyRate != 100 {
		t.Errorf("expected occupancy 100, got %d", view.OccupancyRate)
	}
}

func TestReconcile_NoShowDoesNotReopen(t *testing.T) {
	appts := []Appointment{appt("a1", testDate, "10:00", StatusNoShow)}
	if got := FreeSlotTimes(testDate, nil, appts); len(got) != 0 {
		t.Errorf("no-show should not reopen an undeclared time, got %v", got)
	}
}

func TestReconcile_IgnoresOtherDates(t *testing.T) {
	day := declaredDay("09:00")
	appts := []Appointment{
		appt("a1", "2026-02-11", "09:00", StatusConfirmed),
		appt("a2", "2026-02-11", "11:00", StatusCancelled),
	}
	if got := FreeSlotTimes(testDate, day, appts); !reflect.DeepEqual(got, []string{"09:00"}) {
		t.Errorf("got %v", got)
	}
}

func TestOccupancyRate(t *testing.T) {
	tests := []struct{ occ, total, want int }{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{3, 3, 100},
	}
	for _, tt := range tests {
		if got := OccupancyRate(tt.occ, tt.total); got != tt.want {
			t.Errorf("OccupancyRate(%d, %d) = %d, want %d", tt.occ, tt.total, got, tt.want)
		}
	}
}

var (
	genTimes    = []string{"08:00", "09:00", "10:00", "11:00", "14:00"}
	genStatuses = AllStatuses
)

func randomInputs(r *rand.Rand) (*AvailabilityDay, []Appointment) {
	day := &AvailabilityDay{Date: testDate}
	for _, tm := range genTimes {
		if r.Intn(2) == 0 {
			day.Slots = append(day.Slots, Slot{Time: tm})
		}
	}
	n := r.Intn(8)
	appts := make([]Appointment, 0, n)
	for i := 0; i < n; i++ {
		date := testDate
		if r.Intn(5) == 0 {
			date = "2026-02-11"
		}
		appts = append(appts, appt(fmt.Sprintf("a%d", i), date, genTimes[r.Intn(len(genTimes))], genStatuses[r.Intn(len(genStatuses))]))
	}
	return day, appts
}

func TestReconcile_CompletenessAndDisjointness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		day, appts := randomInputs(r)
		view := Reconcile(testDate, day, appts)

		union := map[string]bool{}
		for _, tm := range view.Free {
			union[tm] = true
		}
		for _, tm := range view.Occupied {
			if union[tm] {
				t.Fatalf("case %d: %s both free and occupied", i, tm)
			}
			union[tm] = true
		}
		if len(union) != view.Total {
			t.Fatalf("case %d: free+occupied covers %d times, total is %d", i, len(union), view.Total)
		}

		expected := map[string]bool{}
		for _, tm := range day.DeclaredTimes() {
			expected[tm] = true
		}
		for _, a := range appts {
			if a.Date != testDate {
				continue
			}
			if a.Status.Active() || a.Status == StatusCancelled {
				expected[a.Time] = true
			}
		}
		if len(expected) != view.Total {
			t.Fatalf("case %d: expected total %d, got %d", i, len(expected), view.Total)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		day, appts := randomInputs(r)
		first := Reconcile(testDate, day, appts)
		second := Reconcile(testDate, day, appts)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("case %d: results differ: %+v vs %+v", i, first, second)
		}
	}
}

func TestComputeDayStats(t *testing.T) {
	day := declaredDay("09:00", "10:00", "11:00", "14:00")
	appts := []Appointment{
		appt("a1", testDate, "09:00", StatusConfirmed),
		appt("a2", testDate, "10:00", StatusCancelled),
		appt("a3", testDate, "10:00", StatusPending),
		appt("a4", testDate, "11:00", StatusNoShow),
		appt("a5", testDate, "16:00", StatusCancelled),
		appt("a6", "2026-02-11", "09:00", StatusConfirmed),
	}
	st := ComputeDayStats(testDate, day, appts)
	want := DayStats{
		Date:          testDate,
		Pending:       1,
		Confirmed:     1,
		NoShow:        1,
		Cancelled:     2,
		Free:          3,
		Occupied:      2,
		Total:         5,
		OccupancyRate: 40,
	}
	if st != want {
		t.Errorf("got %+v\nwant %+v", st, want)
	}
}

func TestPeriodStats(t *testing.T) {
	days := map[string]*AvailabilityDay{
		"2026-02-10": declaredDay("09:00", "10:00"),
		"2026-02-12": {Date: "2026-02-12", Slots: []Slot{{Time: "09:00"}}},
		"2026-02-20": {Date: "2026-02-20", Slots: []Slot{{Time: "09:00"}}},
	}
	appts := []Appointment{
		appt("a1", "2026-02-10", "09:00", StatusConfirmed),
		appt("a2", "2026-02-12", "09:00", StatusPending),
		appt("a3", "2026-02-20", "09:00", StatusConfirmed),
	}
	sum, err := PeriodStats("2026-02-10", "2026-02-12", days, appts)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(sum.Days))
	}
	if sum.Days[1].Total != 0 {
		t.Errorf("expected empty middle day, got %+v", sum.Days[1])
	}
	if sum.Totals.Confirmed != 1 || sum.Totals.Pending != 1 {
		t.Errorf("unexpected totals %+v", sum.Totals)
	}
	// 2 occupied out of 3 slots, not the mean of 50% and 100%.
	if sum.Totals.OccupancyRate != 67 {
		t.Errorf("expected occupancy 67, got %d", sum.Totals.OccupancyRate)
	}
}

func TestPeriodStats_InvalidRange(t *testing.T) {
	tests := []struct{ from, to string }{
		{"2026-02-12", "2026-02-10"},
		{"bad", "2026-02-10"},
		{"2026-01-01", "2027-06-01"},
	}
	for _, tt := range tests {
		if _, err := PeriodStats(tt.from, tt.to, nil, nil); err == nil {
			t.Errorf("expected error for %s..%s", tt.from, tt.to)
		}
	}
}
