package professional

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id string) (*Professional, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) BySlug(ctx context.Context, slug string) (*Professional, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !ValidSlug(slug) {
		return nil, ErrNotFound
	}
	return s.repo.GetBySlug(ctx, slug)
}

// ProfileUpdate holds the fields a professional edits from settings.
type ProfileUpdate struct {
	Slug          string     `json:"slug"`
	Name          string     `json:"name"`
	Locations     []Location `json:"locations"`
	OnlineValue   int64      `json:"onlineValue"`
	InPersonValue int64      `json:"inPersonValue"`
}

func (u *ProfileUpdate) validate() error {
	u.Slug = strings.ToLower(strings.TrimSpace(u.Slug))
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !ValidSlug(u.Slug) {
		return fmt.Errorf("%w: slug must be 3-64 lowercase letters, digits or hyphens", ErrValidation)
	}
	if u.OnlineValue < 0 || u.InPersonValue < 0 {
		return fmt.Errorf("%w: values must not be negative", ErrValidation)
	}
	seen := make(map[string]bool, len(u.Locations))
	for _, l := range u.Locations {
		if l.ID == "" || l.Name == "" {
			return fmt.Errorf("%w: locations need an id and a name", ErrValidation)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate location id %q", ErrValidation, l.ID)
		}
		seen[l.ID] = true
		if l.Value != nil && *l.Value < 0 {
			return fmt.Errorf("%w: location %q has a negative value", ErrValidation, l.ID)
		}
	}
	return nil
}

// UpdateProfile applies upd, creating the professional on first save. New
// professionals start on the free plan; the plan is never changed here.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Professional, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: professional id is required", ErrValidation)
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p, err := s.repo.GetByID(ctx, id)
	previousSlug := ""
	switch {
	case errors.Is(err, ErrNotFound):
		p = &Professional{ID: id, Plan: PlanFree, CreatedAt: now}
	case err != nil:
		return nil, err
	default:
		previousSlug = p.Slug
	}

	p.Slug = upd.Slug
	p.Name = upd.Name
	p.Locations = upd.Locations
	p.OnlineValue = upd.OnlineValue
	p.InPersonValue = upd.InPersonValue
	p.UpdatedAt = now

	if err := s.repo.Save(ctx, p, previousSlug); err != nil {
		return nil, err
	}
	s.logger.Info().Str("professional_id", id).Str("slug", p.Slug).Msg("profile saved")
	return p, nil
}

// SetPlan is called by billing integrations and operators.
func (s *Service) SetPlan(ctx context.Context, id string, plan Plan) error {
	if plan != PlanFree && plan != PlanPro {
		return fmt.Errorf("%w: unknown plan %q", ErrValidation, plan)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Plan == plan {
		return nil
	}
	old := p.Plan
	p.Plan = plan
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, p, p.Slug); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", id).Str("from", string(old)).Str("to", string(plan)).Msg("plan changed")
	return nil
}
