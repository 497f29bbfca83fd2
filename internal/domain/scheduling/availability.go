package scheduling

import (
	"sort"
	"time"
)

// AvailabilityDay is the set of slots one professional declared for a date.
// Slots are kept sorted and unique by time.
type AvailabilityDay struct {
	ProfessionalID string    `json:"professionalId"`
	Date           string    `json:"date"`
	Slots          []Slot    `json:"slots"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func DayID(professionalID, date string) string {
	return professionalID + "_" + date
}

// DeclaredTimes returns the sorted slot times. A nil day declares nothing.
func (d *AvailabilityDay) DeclaredTimes() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Slots))
	for _, s := range d.Slots {
		out = append(out, s.Time)
	}
	return out
}

func (d *AvailabilityDay) SlotAt(t string) (Slot, bool) {
	if d == nil {
		return Slot{}, false
	}
	for _, s := range d.Slots {
		if s.Time == t {
			return s, true
		}
	}
	return Slot{}, false
}

// WithSlot returns a copy of d containing s, replacing any slot at the same
// time.
func (d AvailabilityDay) WithSlot(s Slot) AvailabilityDay {
	slots := make([]Slot, 0, len(d.Slots)+1)
	for _, existing := range d.Slots {
		if existing.Time != s.Time {
			slots = append(slots, existing)
		}
	}
	d.Slots = normalizeSlots(append(slots, s.normalized()))
	return d
}

// WithoutTime returns a copy of d without the slot at t.
func (d AvailabilityDay) WithoutTime(t string) AvailabilityDay {
	slots := make([]Slot, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.Time != t {
			slots = append(slots, s)
		}
	}
	d.Slots = slots
	return d
}

func (d *AvailabilityDay) Empty() bool {
	return d == nil || len(d.Slots) == 0
}

// normalizeSlots sorts by time and keeps the first slot for each time.
func normalizeSlots(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if s.Time == "" || seen[s.Time] {
			continue
		}
		seen[s.Time] = true
		out = append(out, s.normalized())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
