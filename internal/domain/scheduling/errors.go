package scheduling

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrSlotUnavailable    = errors.New("slot unavailable")
	ErrConstraintMismatch = errors.New("constraint mismatch")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrLockedTransition   = errors.New("locked transition")
	ErrPersistence        = errors.New("persistence error")
)

// errClaimTaken is returned by the repository when a slot claim already
// exists. Callers translate it into the kind that fits the operation.
var errClaimTaken = errors.New("slot claim already held")

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrNotFound, "NotFoundError"},
	{ErrSlotUnavailable, "SlotUnavailableError"},
	{ErrConstraintMismatch, "ConstraintMismatchError"},
	{ErrQuotaExceeded, "QuotaExceededError"},
	{ErrLockedTransition, "LockedTransitionError"},
	{ErrPersistence, "PersistenceError"},
}

// ErrorKind names the error kind of err for logs and metric labels. Errors
// outside the scheduling set are reported as "InternalError".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "InternalError"
}

func isDomainError(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return false
}
