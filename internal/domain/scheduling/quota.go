package scheduling

import (
	"time"

	"github.com/agenda/agenda/internal/domain/professional"
)

// FreeTierMonthlyLimit is the default number of confirmed appointments a
// free professional may hold in one calendar month.
const FreeTierMonthlyLimit = 10

// Unlimited is reported as the limit of plans without a quota.
const Unlimited = -1

// MonthWindow returns the first and last date of the month containing ref.
func MonthWindow(ref time.Time) (first, last string) {
	y, m, _ := ref.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, ref.Location())
	end := start.AddDate(0, 1, -1)
	return start.Format(dateLayout), end.Format(dateLayout)
}

// ConfirmedCountThisMonth counts confirmed appointments dated within the
// month of ref.
func ConfirmedCountThisMonth(appts []Appointment, ref time.Time) int {
	first, last := MonthWindow(ref)
	n := 0
	for i := range appts {
		a := &appts[i]
		if a.Status == StatusConfirmed && a.Date >= first && a.Date <= last {
			n++
		}
	}
	return n
}

// IsAllowed applies the default free limit.
func IsAllowed(plan professional.Plan, count int) bool {
	return Enforcer{Limit: FreeTierMonthlyLimit}.Allowed(plan, count)
}

// Enforcer applies a monthly limit to free plans. Limit is used as is, so a
// zero Limit admits nothing on the free plan.
type Enforcer struct {
	Limit int
}

func (e Enforcer) Allowed(plan professional.Plan, count int) bool {
	if plan.Normalize() == professional.PlanPro {
		return true
	}
	return count < e.Limit
}

type QuotaStatus struct {
	Plan        professional.Plan `json:"plan"`
	Used        int               `json:"used"`
	Limit       int               `json:"limit"`
	Remaining   int               `json:"remaining"`
	Allowed     bool              `json:"allowed"`
	WindowStart string            `json:"windowStart"`
	WindowEnd   string            `json:"windowEnd"`
}

func (e Enforcer) Status(plan professional.Plan, appts []Appointment, ref time.Time) QuotaStatus {
	plan = plan.Normalize()
	used := ConfirmedCountThisMonth(appts, ref)
	first, last := MonthWindow(ref)
	st := QuotaStatus{
		Plan:        plan,
		Used:        used,
		Limit:       Unlimited,
		Remaining:   Unlimited,
		Allowed:     e.Allowed(plan, used),
		WindowStart: first,
		WindowEnd:   last,
	}
	if plan != professional.PlanPro {
		st.Limit = e.Limit
		st.Remaining = max(e.Limit-used, 0)
	}
	return st
}
