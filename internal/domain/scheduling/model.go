package scheduling

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusMessageSent Status = "message_sent"
	StatusConfirmed   Status = "confirmed"
	StatusNoShow      Status = "no_show"
	StatusCancelled   Status = "cancelled"
)

var AllStatuses = []Status{StatusPending, StatusMessageSent, StatusConfirmed, StatusNoShow, StatusCancelled}

// Active reports whether the status holds its slot.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusMessageSent, StatusConfirmed:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

type Origin string

const (
	OriginPublic Origin = "public"
	OriginDirect Origin = "direct"
)

// SlotKey identifies a slot within one professional's agenda.
type SlotKey struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (k SlotKey) String() string { return k.Date + " " + k.Time }

// Appointment is a booking against a slot. Value is in minor currency units.
// Only Status, Notes and UpdatedAt change after creation.
type Appointment struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professionalId"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	PatientName    string    `json:"patientName"`
	PatientContact string    `json:"patientContact"`
	Value          int64     `json:"value"`
	Modality       Modality  `json:"modality"`
	Location       string    `json:"location,omitempty"`
	Status         Status    `json:"status"`
	Origin         Origin    `json:"origin"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (a *Appointment) Key() SlotKey {
	return SlotKey{Date: a.Date, Time: a.Time}
}

// SlotClaim marks the single active appointment holding a slot. Its id is
// derived from the slot so a second claim fails on create.
type SlotClaim struct {
	ProfessionalID string    `json:"professionalId"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	AppointmentID  string    `json:"appointmentId"`
	ClaimedAt      time.Time `json:"claimedAt"`
}

func ClaimID(professionalID string, key SlotKey) string {
	return professionalID + "_" + key.Date + "_" + key.Time
}

func claimFor(a *Appointment, now time.Time) *SlotClaim {
	return &SlotClaim{
		ProfessionalID: a.ProfessionalID,
		Date:           a.Date,
		Time:           a.Time,
		AppointmentID:  a.ID,
		ClaimedAt:      now,
	}
}
