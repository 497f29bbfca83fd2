package scheduling

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type timeSet map[string]struct{}

func (s timeSet) add(t string) { s[t] = struct{}{} }

func (s timeSet) has(t string) bool {
	_, ok := s[t]
	return ok
}

func (s timeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DayView is the reconciled state of one date. Free and Occupied are
// disjoint; Reclaimed is a subset of Free.
type DayView struct {
	Date          string   `json:"date"`
	Declared      []string `json:"declared"`
	Free          []string `json:"free"`
	Occupied      []string `json:"occupied"`
	Reclaimed     []string `json:"reclaimed"`
	Total         int      `json:"total"`
	OccupancyRate int      `json:"occupancyRate"`
}

// Reconcile merges the declared slots of day with the appointments on date.
// A cancelled appointment at a time that is neither declared nor actively
// held reopens that time.
func Reconcile(date string, day *AvailabilityDay, appts []Appointment) DayView {
	declared := timeSet{}
	if day != nil && (day.Date == "" || day.Date == date) {
		for _, t := range day.DeclaredTimes() {
			declared.add(t)
		}
	}

	occupied := timeSet{}
	for i := range appts {
		if appts[i].Date == date && appts[i].Status.Active() {
			occupied.add(appts[i].Time)
		}
	}

	reclaimed := timeSet{}
	for i := range appts {
		a := &appts[i]
		if a.Date != date || a.Status != StatusCancelled {
			continue
		}
		if !declared.has(a.Time) && !occupied.has(a.Time) {
			reclaimed.add(a.Time)
		}
	}

	free := timeSet{}
	for t := range declared {
		if !occupied.has(t) {
			free.add(t)
		}
	}
	for t := range reclaimed {
		free.add(t)
	}

	total := len(free) + len(occupied)
	return DayView{
		Date:          date,
		Declared:      declared.sorted(),
		Free:          free.sorted(),
		Occupied:      occupied.sorted(),
		Reclaimed:     reclaimed.sorted(),
		Total:         total,
		OccupancyRate: OccupancyRate(len(occupied), total),
	}
}

// FreeSlotTimes returns the bookable times on date in ascending order.
func FreeSlotTimes(date string, day *AvailabilityDay, appts []Appointment) []string {
	return Reconcile(date, day, appts).Free
}

// TotalSlotCount counts declared, actively held and reclaimed times once each.
func TotalSlotCount(date string, day *AvailabilityDay, appts []Appointment) int {
	return Reconcile(date, day, appts).Total
}

// OccupancyRate is occupied/total as a rounded percentage, 0 when total is 0.
func OccupancyRate(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(occupied) / float64(total) * 100))
}

type DayStats struct {
	Date          string `json:"date"`
	Pending       int    `json:"pending"`
	MessageSent   int    `json:"messageSent"`
	Confirmed     int    `json:"confirmed"`
	NoShow        int    `json:"noShow"`
	Cancelled     int    `json:"cancelled"`
	Free          int    `json:"free"`
	Occupied      int    `json:"occupied"`
	Total         int    `json:"total"`
	OccupancyRate int    `json:"occupancyRate"`
}

func (s *DayStats) count(st Status) {
	switch st {
	case StatusPending:
		s.Pending++
	case StatusMessageSent:
		s.MessageSent++
	case StatusConfirmed:
		s.Confirmed++
	case StatusNoShow:
		s.NoShow++
	case StatusCancelled:
		s.Cancelled++
	}
}

// ComputeDayStats counts appointments on date by status and adds the
// reconciled slot figures. Every appointment record counts, including
// cancelled ones whose slot was rebooked.
func ComputeDayStats(date string, day *AvailabilityDay, appts []Appointment) DayStats {
	view := Reconcile(date, day, appts)
	st := DayStats{
		Date:          date,
		Free:          len(view.Free),
		Occupied:      len(view.Occupied),
		Total:         view.Total,
		OccupancyRate: view.OccupancyRate,
	}
	for i := range appts {
		if appts[i].Date == date {
			st.count(appts[i].Status)
		}
	}
	return st
}

// MaxPeriodDays bounds PeriodStats ranges.
const MaxPeriodDays = 366

type PeriodSummary struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Days   []DayStats `json:"days"`
	Totals DayStats   `json:"totals"`
}

// PeriodStats aggregates ComputeDayStats over the inclusive range [from, to].
// days maps a date to its availability. The period occupancy rate is
// recomputed from the summed counts, not averaged.
func PeriodStats(from, to string, days map[string]*AvailabilityDay, appts []Appointment) (PeriodSummary, error) {
	start, end, err := parseRange(from, to)
	if err != nil {
		return PeriodSummary{}, err
	}

	byDate := make(map[string][]Appointment)
	for _, a := range appts {
		if a.Date >= from && a.Date <= to {
			byDate[a.Date] = append(byDate[a.Date], a)
		}
	}

	sum := PeriodSummary{From: from, To: to, Days: []DayStats{}}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		st := ComputeDayStats(date, days[date], byDate[date])
		sum.Days = append(sum.Days, st)

		t := &sum.Totals
		t.Pending += st.Pending
		t.MessageSent += st.MessageSent
		t.Confirmed += st.Confirmed
		t.NoShow += st.NoShow
		t.Cancelled += st.Cancelled
		t.Free += st.Free
		t.Occupied += st.Occupied
		t.Total += st.Total
	}
	sum.Totals.OccupancyRate = OccupancyRate(sum.Totals.Occupied, sum.Totals.Total)
	return sum, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil || !ValidDate(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid from date %q", ErrValidation, from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil || !ValidDate(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid to date %q", ErrValidation, to)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range ends before it starts", ErrValidation)
	}
	if end.Sub(start) >= MaxPeriodDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range longer than %d days", ErrValidation, MaxPeriodDays)
	}
	return start, end, nil
}
