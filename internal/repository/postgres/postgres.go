package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livninoam/workday/internal/domain"
	"github.com/livninoam/workday/internal/repository"
)

const (
	sqlStateInvalidText = "22P02"
	sqlStateOutOfRange  = "22003"
	sqlStateNotNull     = "23502"
	sqlStateCheck       = "23514"
)

const devEnvColumns = `id::text, name, owner, "group", duration, env_type::text, created_at, updated_at`

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var _ repository.DevEnvRepository = (*Repository)(nil)

// Connect opens a pool against databaseURL and verifies it answers.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Insert stores a new dev env, assigning its id and creation time.
func (r *Repository) Insert(ctx context.Context, env *domain.DevEnv) error {
	if env == nil {
		return fmt.Errorf("dev env required")
	}
	id := uuid.NewString()
	const query = `INSERT INTO dev_envs (id, name, owner, "group", duration, env_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::dev_env_type, NOW())
		RETURNING created_at`
	var createdAt time.Time
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query,
			id,
			env.Name,
			env.Owner,
			env.Group,
			env.Duration,
			string(env.EnvType),
		).Scan(&createdAt)
	})
	if err != nil {
		return translate(err)
	}
	env.ID = id
	env.CreatedAt = createdAt
	env.UpdatedAt = nil
	return nil
}

// FindByID loads a single dev env. A missing row yields ok=false and no error.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.DevEnv, bool, error) {
	const query = `SELECT ` + devEnvColumns + ` FROM dev_envs WHERE id = $1::uuid`
	var env *domain.DevEnv
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		env, err = scanDevEnv(tx.QueryRow(ctx, query, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, translate(err)
	}
	return env, true, nil
}

// UpdatePartial overwrites the fields present in patch and refreshes updated_at.
func (r *Repository) UpdatePartial(ctx context.Context, id string, patch domain.DevEnvPatch) (*domain.DevEnv, error) {
	const query = `UPDATE dev_envs
		SET name = COALESCE($2, name),
			owner = COALESCE($3, owner),
			"group" = COALESCE($4, "group"),
			duration = COALESCE($5, duration),
			env_type = COALESCE($6::dev_env_type, env_type),
			updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING ` + devEnvColumns
	var env *domain.DevEnv
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		env, err = scanDevEnv(tx.QueryRow(ctx, query,
			id,
			patch.Name,
			patch.Owner,
			patch.Group,
			patch.Duration,
			envTypeToNil(patch.EnvType),
		))
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return env, nil
}

// IncrementDuration adds delta to the stored duration. Negative deltas are allowed.
func (r *Repository) IncrementDuration(ctx context.Context, id string, delta int32) (*domain.DevEnv, error) {
	const query = `UPDATE dev_envs
		SET duration = duration + $2,
			updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING ` + devEnvColumns
	var env *domain.DevEnv
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		env, err = scanDevEnv(tx.QueryRow(ctx, query, id, delta))
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return env, nil
}

// Delete removes a dev env record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM dev_envs WHERE id = $1::uuid`
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, query, id)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return translate(err)
}

// withTx runs fn in a read-committed transaction. The transaction is committed
// when fn returns nil and rolled back otherwise; the connection always returns
// to the pool.
func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func scanDevEnv(row pgx.Row) (*domain.DevEnv, error) {
	var (
		env     domain.DevEnv
		envType string
	)
	if err := row.Scan(
		&env.ID,
		&env.Name,
		&env.Owner,
		&env.Group,
		&env.Duration,
		&envType,
		&env.CreatedAt,
		&env.UpdatedAt,
	); err != nil {
		return nil, err
	}
	env.EnvType = domain.EnvType(envType)
	return &env, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateOutOfRange:
		// duration is the only integer column written by callers.
		return &repository.FieldError{Field: "duration", Reason: "out of range"}
	case sqlStateInvalidText:
		switch {
		case strings.Contains(pgErr.Message, "enum"):
			return &repository.FieldError{Field: "env_type", Reason: "must be one of: dev, stage"}
		case strings.Contains(pgErr.Message, "uuid"):
			return &repository.FieldError{Field: "env_id", Reason: "must be a valid UUID"}
		}
		return repository.ErrInvalidArgument
	case sqlStateNotNull:
		if pgErr.ColumnName != "" {
			return &repository.FieldError{Field: pgErr.ColumnName, Reason: "is required"}
		}
		return repository.ErrInvalidArgument
	case sqlStateCheck:
		return repository.ErrInvalidArgument
	}
	return err
}

func envTypeToNil(t *domain.EnvType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}
