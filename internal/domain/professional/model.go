package professional

import (
	"regexp"
	"time"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Normalize maps unknown or empty plans to PlanFree.
func (p Plan) Normalize() Plan {
	if p == PlanPro {
		return PlanPro
	}
	return PlanFree
}

// Location is a place where in-person appointments happen. Value, when set,
// overrides the professional's in-person default for bookings there.
type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Value   *int64 `json:"value,omitempty"`
}

// Professional is the owner of an agenda. Values are in minor currency units.
type Professional struct {
	ID            string     `json:"id"`
	Slug          string     `json:"slug"`
	Name          string     `json:"name"`
	Plan          Plan       `json:"plan"`
	Locations     []Location `json:"locations"`
	OnlineValue   int64      `json:"onlineValue"`
	InPersonValue int64      `json:"inPersonValue"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (p *Professional) Location(id string) (Location, bool) {
	for _, l := range p.Locations {
		if l.ID == id {
			return l, true
		}
	}
	return Location{}, false
}

// PublicProfile is what the booking page sees. The plan is not exposed.
type PublicProfile struct {
	Slug          string     `json:"slug"`
	Name          string     `json:"name"`
	Locations     []Location `json:"locations"`
	OnlineValue   int64      `json:"onlineValue"`
	InPersonValue int64      `json:"inPersonValue"`
}

func (p *Professional) Public() PublicProfile {
	locs := p.Locations
	if locs == nil {
		locs = []Location{}
	}
	return PublicProfile{
		Slug:          p.Slug,
		Name:          p.Name,
		Locations:     locs,
		OnlineValue:   p.OnlineValue,
		InPersonValue: p.InPersonValue,
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,62}[a-z0-9])$`)

// ValidSlug reports whether s is 3-64 chars of lowercase letters, digits and
// inner hyphens.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
