package scheduling

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSlotUnmarshal_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Slot
	}{
		{"bare string", `"09:00"`, Slot{Time: "09:00"}},
		{"bare unpadded", `"9:30"`, Slot{Time: "09:30"}},
		{"object online", `{"time":"10:00","modality":"online"}`, Slot{Time: "10:00", Modality: ModalityOnline}},
		{"object in person", `{"time":"11:00","modality":"in_person","locations":["sul","centro","sul"]}`,
			Slot{Time: "11:00", Modality: ModalityInPerson, Locations: []string{"sul", "centro", "sul"}}},
		{"legacy keys", `{"time":"14:00","appointmentType":"in_person","allowedLocations":["centro"]}`,
			Slot{Time: "14:00", Modality: ModalityInPerson, Locations: []string{"centro"}}},
		{"locations kept when online", `{"time":"15:00","modality":"online","locations":["centro"]}`,
			Slot{Time: "15:00", Modality: ModalityOnline, Locations: []string{"centro"}}},
		{"unconstrained object", `{"time":"16:00"}`, Slot{Time: "16:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Slot
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSlotUnmarshal_MixedDay(t *testing.T) {
	raw := `{"professionalId":"pro-1","date":"2026-02-10","slots":["10:00",{"time":"09:00","appointmentType":"online"}]}`
	var day AvailabilityDay
	if err := json.Unmarshal([]byte(raw), &day); err != nil {
		t.Fatal(err)
	}
	day.Slots = normalizeSlots(day.Slots)
	if got := day.DeclaredTimes(); !reflect.DeepEqual(got, []string{"09:00", "10:00"}) {
		t.Errorf("unexpected times %v", got)
	}
	s, ok := day.SlotAt("09:00")
	if !ok || s.Modality != ModalityOnline {
		t.Errorf("expected online slot at 09:00, got %+v", s)
	}
}

func TestNormalizeSlots_CleansStoredConstraints(t *testing.T) {
	raw := `{"professionalId":"pro-1","date":"2026-02-10","slots":[` +
		`{"time":"11:00","modality":"in_person","locations":["sul","centro","sul"]},` +
		`{"time":"10:00","modality":"online","locations":["centro"]}]}`
	var day AvailabilityDay
	if err := json.Unmarshal([]byte(raw), &day); err != nil {
		t.Fatal(err)
	}
	got := normalizeSlots(day.Slots)
	want := []Slot{
		{Time: "10:00", Modality: ModalityOnline},
		{Time: "11:00", Modality: ModalityInPerson, Locations: []string{"centro", "sul"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSlotUnmarshal_Invalid(t *testing.T) {
	var s Slot
	if err := json.Unmarshal([]byte(`42`), &s); err == nil {
		t.Error("expected error for numeric slot")
	}
}

func TestValidTime(t *testing.T) {
	for _, ok := range []string{"00:00", "09:05", "23:59"} {
		if !ValidTime(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "9:00", "24:00", "12:60", "12-00", "12:00:00"} {
		if ValidTime(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestValidDate(t *testing.T) {
	for _, ok := range []string{"2026-02-10", "2024-02-29"} {
		if !ValidDate(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "2026-2-10", "2026-02-30", "2025-02-29", "10/02/2026"} {
		if ValidDate(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestAvailabilityDay_WithSlotAndWithoutTime(t *testing.T) {
	day := AvailabilityDay{ProfessionalID: "pro-1", Date: "2026-02-10"}
	day = day.WithSlot(Slot{Time: "10:00"})
	day = day.WithSlot(Slot{Time: "09:00"})
	day = day.WithSlot(Slot{Time: "10:00", Modality: ModalityOnline})

	if got := day.DeclaredTimes(); !reflect.DeepEqual(got, []string{"09:00", "10:00"}) {
		t.Fatalf("unexpected times %v", got)
	}
	if s, _ := day.SlotAt("10:00"); s.Modality != ModalityOnline {
		t.Errorf("expected replaced slot, got %+v", s)
	}

	before := day
	after := day.WithoutTime("09:00")
	if len(before.Slots) != 2 {
		t.Error("WithoutTime mutated the original day")
	}
	if got := after.DeclaredTimes(); !reflect.DeepEqual(got, []string{"10:00"}) {
		t.Errorf("unexpected times %v", got)
	}
	if emptied := after.WithoutTime("10:00"); !emptied.Empty() {
		t.Error("expected day to be empty")
	}

	var nilDay *AvailabilityDay
	if nilDay.DeclaredTimes() != nil || !nilDay.Empty() {
		t.Error("nil day should declare nothing")
	}
}

func TestParseModality(t *testing.T) {
	if m, err := ParseModality(" in_person "); err != nil || m != ModalityInPerson {
		t.Errorf("got %q, %v", m, err)
	}
	if _, err := ParseModality("video"); err == nil {
		t.Error("expected error for unknown modality")
	}
}
