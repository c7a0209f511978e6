package repository

import (
	"context"

	"github.com/livninoam/workday/internal/domain"
)

// DevEnvRepository persists dev environment records.
type DevEnvRepository interface {
	// Insert assigns an identifier and creation time to env and stores it.
	Insert(ctx context.Context, env *domain.DevEnv) error
	// FindByID reports a miss with ok=false rather than an error.
	FindByID(ctx context.Context, id string) (env *domain.DevEnv, ok bool, err error)
	UpdatePartial(ctx context.Context, id string, patch domain.DevEnvPatch) (*domain.DevEnv, error)
	IncrementDuration(ctx context.Context, id string, delta int32) (*domain.DevEnv, error)
	Delete(ctx context.Context, id string) error
}
