package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"go.uber.org/zap"
)

type ActivationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivationRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivationRepository {
	return &ActivationRepository{
		db:     db,
		logger: logger.Named("ActivationRepository"),
	}
}

var _ activation.Repository = (*ActivationRepository)(nil)

func (r *ActivationRepository) FindByKey(ctx context.Context, key string) (*activation.Activation, error) {
	query := `
        SELECT client_id, license_key, activated_at
        FROM activations
        WHERE license_key = $1
    `
	return r.findOne(ctx, query, key)
}

func (r *ActivationRepository) FindByClientAndKey(ctx context.Context, clientID, key string) (*activation.Activation, error) {
	query := `
        SELECT client_id, license_key, activated_at
        FROM activations
        WHERE license_key = $1 AND client_id = $2
    `
	return r.findOne(ctx, query, key, clientID)
}

// Append relies on the primary key on license_key: a second binding for the
// same key inserts nothing and reports ErrAlreadyBound.
func (r *ActivationRepository) Append(ctx context.Context, act *activation.Activation) error {
	query := `
        INSERT INTO activations (license_key, client_id, activated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (license_key) DO NOTHING
    `
	cmdTag, err := r.db.Exec(ctx, query, act.Key, act.ClientID, act.ActivatedAt)
	if err != nil {
		r.logger.Error("Failed to insert activation", zap.String("license_key", act.Key), zap.Error(err))
		return fmt.Errorf("%w: append activation: %v", ierr.ErrStorage, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Debug("Activation already exists for key", zap.String("license_key", act.Key))
		return activation.ErrAlreadyBound
	}
	return nil
}

func (r *ActivationRepository) findOne(ctx context.Context, query string, args ...any) (*activation.Activation, error) {
	var act activation.Activation
	err := r.db.QueryRow(ctx, query, args...).Scan(&act.ClientID, &act.Key, &act.ActivatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, activation.ErrNotFound
		}
		r.logger.Error("Failed to query activation", zap.Error(err))
		return nil, fmt.Errorf("%w: find activation: %v", ierr.ErrStorage, err)
	}
	act.ActivatedAt = act.ActivatedAt.UTC()
	return &act, nil
}
