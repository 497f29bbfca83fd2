package scheduling

import "sort"

// Decision is the answer to a status transition request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const (
	reasonNotFound = "appointment not found"
	reasonLocked   = "slot was rebooked by another appointment; this record is frozen"
	reasonSibling  = "another appointment is active at the same date and time"
)

func groupByKey(appts []Appointment) map[SlotKey][]int {
	groups := make(map[SlotKey][]int)
	for i := range appts {
		k := appts[i].Key()
		groups[k] = append(groups[k], i)
	}
	return groups
}

// LockedAppointmentIDs returns the inactive appointments that share a
// date and time with an active one. They may not change status.
func LockedAppointmentIDs(appts []Appointment) map[string]struct{} {
	locked := make(map[string]struct{})
	for _, idx := range groupByKey(appts) {
		hasActive := false
		for _, i := range idx {
			if appts[i].Status.Active() {
				hasActive = true
				break
			}
		}
		if !hasActive {
			continue
		}
		for _, i := range idx {
			if !appts[i].Status.Active() {
				locked[appts[i].ID] = struct{}{}
			}
		}
	}
	return locked
}

// CanTransition decides whether appointment id may move to next given the
// full ledger of its professional. A locked appointment never moves. Moving
// into an active status is otherwise allowed; leaving the active group is
// allowed only when no other appointment at the same key is active.
func CanTransition(appts []Appointment, id string, next Status) Decision {
	target := -1
	for i := range appts {
		if appts[i].ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return Decision{Reason: reasonNotFound}
	}
	if _, locked := LockedAppointmentIDs(appts)[id]; locked {
		return Decision{Reason: reasonLocked}
	}
	if next.Active() {
		return Decision{Allowed: true}
	}

	key := appts[target].Key()
	for i := range appts {
		if i != target && appts[i].Key() == key && appts[i].Status.Active() {
			return Decision{Reason: reasonSibling}
		}
	}
	return Decision{Allowed: true}
}

// ActiveConflicts lists keys held by more than one active appointment.
func ActiveConflicts(appts []Appointment) []SlotKey {
	var out []SlotKey
	for k, idx := range groupByKey(appts) {
		n := 0
		for _, i := range idx {
			if appts[i].Status.Active() {
				n++
			}
		}
		if n > 1 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
