// Package source provides use cases for registering and managing pollable
// sources (RSS/Atom feeds and IMAP mailboxes). It implements validation and
// delegates persistence to the State Store's SourceRepository.
package source

import (
	"context"
	"fmt"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// CreateInput represents the input parameters for registering a new source.
type CreateInput struct {
	Kind entity.SourceKind
	URI  string
}

// Service provides source management use cases. It handles validation and
// delegates persistence to the repository.
type Service struct {
	Repo repository.SourceRepository
}

// List retrieves all registered sources.
func (s *Service) List(ctx context.Context) ([]*entity.Source, error) {
	sources, err := s.Repo.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// Get retrieves a single source by ID.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Source, error) {
	src, err := s.Repo.GetSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return src, nil
}

// Create validates and registers a new source. BaseInterval defaults per
// entity.DefaultBaseInterval when left zero.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Source, error) {
	src := &entity.Source{
		Kind:   in.Kind,
		URI:    in.URI,
		Active: true,
	}

	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("validate source: %w", err)
	}

	if err := s.Repo.RegisterSource(ctx, src); err != nil {
		return nil, fmt.Errorf("register source: %w", err)
	}
	return src, nil
}

// Deactivate soft-deletes a source so the scheduler stops polling it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return &entity.ValidationError{Field: "id", Message: "must be positive"}
	}
	if err := s.Repo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate source: %w", err)
	}
	return nil
}
