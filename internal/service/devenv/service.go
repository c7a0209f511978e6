package devenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/livninoam/workday/internal/domain"
	"github.com/livninoam/workday/internal/repository"
)

// CreateInput is the schema for a new dev env.
type CreateInput struct {
	Name     string `json:"name" validate:"required"`
	Owner    string `json:"owner" validate:"required"`
	Group    string `json:"group" validate:"required"`
	Duration *int32 `json:"duration" validate:"required"`
	EnvType  string `json:"env_type" validate:"required,oneof=dev stage"`
}

// UpdateInput is the schema for a sparse update. Nil fields are not touched.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitnil,min=1"`
	Owner    *string `json:"owner" validate:"omitnil,min=1"`
	Group    *string `json:"group" validate:"omitnil,min=1"`
	Duration *int32  `json:"duration"`
	EnvType  *string `json:"env_type" validate:"omitnil,oneof=dev stage"`
}

// Service exposes dev env operations over a repository.
type Service struct {
	envs     repository.DevEnvRepository
	logger   *slog.Logger
	validate *validator.Validate
}

// New constructs a dev env service.
func New(envs repository.DevEnvRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{envs: envs, logger: logger, validate: newValidator()}
}

// Create validates input and stores a new dev env.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.DevEnv, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	env := &domain.DevEnv{
		Name:     input.Name,
		Owner:    input.Owner,
		Group:    input.Group,
		Duration: *input.Duration,
		EnvType:  domain.EnvType(input.EnvType),
	}
	if err := s.envs.Insert(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("dev env created", "env_id", env.ID)
	return env, nil
}

// Get returns the dev env with the given id or repository.ErrNotFound.
func (s Service) Get(ctx context.Context, id string) (*domain.DevEnv, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	env, ok, err := s.envs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("dev env not found", "env_id", id, "op", "get")
		return nil, repository.ErrNotFound
	}
	s.logger.Info("dev env retrieved", "env_id", id)
	return env, nil
}

// Update applies the fields present in input.
func (s Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.DevEnv, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.check(input); err != nil {
		return nil, err
	}
	patch := domain.DevEnvPatch{
		Name:     input.Name,
		Owner:    input.Owner,
		Group:    input.Group,
		Duration: input.Duration,
	}
	if input.EnvType != nil {
		t := domain.EnvType(*input.EnvType)
		patch.EnvType = &t
	}
	env, err := s.envs.UpdatePartial(ctx, id, patch)
	if err != nil {
		s.logMiss(err, id, "update")
		return nil, err
	}
	s.logger.Info("dev env updated", "env_id", id, "touch_only", patch.Empty())
	return env, nil
}

// Extend adds extra to the stored duration. Negative values shorten it; no
// floor is applied to the result.
func (s Service) Extend(ctx context.Context, id string, extra int32) (*domain.DevEnv, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	env, err := s.envs.IncrementDuration(ctx, id, extra)
	if err != nil {
		s.logMiss(err, id, "extend")
		return nil, err
	}
	s.logger.Info("dev env extended", "env_id", id, "extra_duration", extra)
	return env, nil
}

// Delete removes the dev env with the given id.
func (s Service) Delete(ctx context.Context, id string) error {
	id, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.envs.Delete(ctx, id); err != nil {
		s.logMiss(err, id, "delete")
		return err
	}
	s.logger.Info("dev env deleted", "env_id", id)
	return nil
}

func (s Service) logMiss(err error, id, op string) {
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("dev env not found", "env_id", id, "op", op)
	}
}

func parseID(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Fields: []FieldError{{Field: "env_id", Message: "must be a valid UUID"}}}
	}
	return parsed.String(), nil
}

// ValidationError lists the fields that failed schema checks.
type ValidationError struct {
	Fields []FieldError
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return repository.ErrInvalidArgument
}
