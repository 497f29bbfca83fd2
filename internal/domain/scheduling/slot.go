package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Modality string

const (
	ModalityAny      Modality = ""
	ModalityOnline   Modality = "online"
	ModalityInPerson Modality = "in_person"
)

// ParseModality accepts the canonical values and the empty string.
func ParseModality(s string) (Modality, error) {
	switch m := Modality(strings.TrimSpace(s)); m {
	case ModalityAny, ModalityOnline, ModalityInPerson:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown modality %q", ErrValidation, s)
}

// Slot is one bookable time on a date. A slot with neither a modality nor
// locations is unconstrained.
type Slot struct {
	Time      string   `json:"time"`
	Modality  Modality `json:"modality,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

func (s Slot) Unconstrained() bool {
	return s.Modality == ModalityAny && len(s.Locations) == 0
}

// AllowsLocation reports whether loc is in the slot's location list. Slots
// without a list allow nothing here; callers fall back to the professional's
// locations.
func (s Slot) AllowsLocation(loc string) bool {
	for _, l := range s.Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts the stored shapes of a slot: a bare "HH:mm" string or
// an object. Older documents used appointmentType and allowedLocations for
// the constraint fields. Constraints are kept as given so callers can reject
// inconsistent input; normalizeSlots cleans stored days.
func (s *Slot) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var t string
		if err := json.Unmarshal(b, &t); err != nil {
			return err
		}
		*s = Slot{Time: CanonicalTime(t)}
		return nil
	}

	var raw struct {
		Time             string   `json:"time"`
		Modality         Modality `json:"modality"`
		AppointmentType  Modality `json:"appointmentType"`
		Locations        []string `json:"locations"`
		AllowedLocations []string `json:"allowedLocations"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("slot: %w", err)
	}
	out := Slot{Time: CanonicalTime(raw.Time), Modality: raw.Modality, Locations: raw.Locations}
	if out.Modality == ModalityAny {
		out.Modality = raw.AppointmentType
	}
	if len(out.Locations) == 0 {
		out.Locations = raw.AllowedLocations
	}
	*s = out
	return nil
}

// normalized drops locations from slots that are not in person and sorts the
// remaining ones.
func (s Slot) normalized() Slot {
	if s.Modality != ModalityInPerson || len(s.Locations) == 0 {
		s.Locations = nil
		return s
	}
	seen := make(map[string]bool, len(s.Locations))
	locs := make([]string, 0, len(s.Locations))
	for _, l := range s.Locations {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		locs = append(locs, l)
	}
	sort.Strings(locs)
	if len(locs) == 0 {
		locs = nil
	}
	s.Locations = locs
	return s
}

var timePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTime reports whether t is a zero-padded 24h HH:mm time.
func ValidTime(t string) bool {
	return timePattern.MatchString(t)
}

// CanonicalTime zero-pads legacy "9:00" style values. Anything it cannot
// parse is returned unchanged and fails ValidTime later.
func CanonicalTime(t string) string {
	t = strings.TrimSpace(t)
	h, m, ok := strings.Cut(t, ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return t
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return t
	}
	return fmt.Sprintf("%02d:%s", hour, m)
}

const dateLayout = "2006-01-02"

// ValidDate reports whether d is a real calendar date in YYYY-MM-DD form.
func ValidDate(d string) bool {
	if len(d) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, d)
	return err == nil
}
