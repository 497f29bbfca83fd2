package professional

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenda/agenda/internal/platform/docstore"
)

const (
	collection     = "professionals"
	slugCollection = "professional_slugs"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Professional, error)
	GetBySlug(ctx context.Context, slug string) (*Professional, error)
	// Save writes p and claims its slug. A slug owned by another
	// professional yields ErrSlugTaken.
	Save(ctx context.Context, p *Professional, previousSlug string) error
}

type slugClaim struct {
	ProfessionalID string `json:"professionalId"`
}

type docRepo struct {
	store docstore.Store
}

func NewRepo(store docstore.Store) Repository {
	return &docRepo{store: store}
}

func (r *docRepo) GetByID(ctx context.Context, id string) (*Professional, error) {
	var p Professional
	if err := r.store.Get(ctx, collection, id, &p); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load professional %s: %w", id, err)
	}
	return &p, nil
}

func (r *docRepo) GetBySlug(ctx context.Context, slug string) (*Professional, error) {
	var claim slugClaim
	if err := r.store.Get(ctx, slugCollection, slug, &claim); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve slug %s: %w", slug, err)
	}
	return r.GetByID(ctx, claim.ProfessionalID)
}

func (r *docRepo) Save(ctx context.Context, p *Professional, previousSlug string) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var claim slugClaim
		err := tx.Get(ctx, slugCollection, p.Slug, &claim)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			if err := tx.Set(ctx, slugCollection, p.Slug, slugClaim{ProfessionalID: p.ID}); err != nil {
				return err
			}
		case err != nil:
			return err
		case claim.ProfessionalID != p.ID:
			return ErrSlugTaken
		}
		if previousSlug != "" && previousSlug != p.Slug {
			if err := tx.Delete(ctx, slugCollection, previousSlug); err != nil {
				return err
			}
		}
		return tx.Set(ctx, collection, p.ID, p)
	})
	if err != nil && !errors.Is(err, ErrSlugTaken) {
		return fmt.Errorf("save professional %s: %w", p.ID, err)
	}
	return err
}
