package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) error {
	query := `
        INSERT INTO licenses (license_key, created_at, expires_at, active, owner_name)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.db.Exec(ctx, query,
		lic.Key,
		lic.CreatedAt,
		lic.ExpiresAt,
		lic.Active,
		lic.OwnerName,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Warn("Attempted to create license with duplicate key",
				zap.String("license_key", lic.Key),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return license.ErrDuplicateKey
		}

		r.logger.Error("Failed to create license in database", zap.Error(err))
		return fmt.Errorf("%w: create license: %v", ierr.ErrStorage, err)
	}

	r.logger.Debug("License created", zap.String("license_key", lic.Key))
	return nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	query := `
        SELECT license_key, created_at, expires_at, active, owner_name
        FROM licenses
        WHERE license_key = $1
    `
	lic, err := scanLicense(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		r.logger.Error("Failed to find license by key", zap.String("license_key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: find license: %v", ierr.ErrStorage, err)
	}
	return lic, nil
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.License, error) {
	query := `
        SELECT license_key, created_at, expires_at, active, owner_name
        FROM licenses
        ORDER BY seq ASC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, fmt.Errorf("%w: list licenses: %v", ierr.ErrStorage, err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			r.logger.Error("Failed to scan license row during list", zap.Error(err))
			return nil, fmt.Errorf("%w: scan license: %v", ierr.ErrStorage, err)
		}
		licenses = append(licenses, lic)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, fmt.Errorf("%w: iterate licenses: %v", ierr.ErrStorage, err)
	}

	return licenses, nil
}

// Update only persists the mutable column.
func (r *LicenseRepository) Update(ctx context.Context, lic *license.License) error {
	query := `UPDATE licenses SET active = $1 WHERE license_key = $2`

	cmdTag, err := r.db.Exec(ctx, query, lic.Active, lic.Key)
	if err != nil {
		r.logger.Error("Failed to update license in database", zap.String("license_key", lic.Key), zap.Error(err))
		return fmt.Errorf("%w: update license: %v", ierr.ErrStorage, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update license, but no rows were affected", zap.String("license_key", lic.Key))
		return license.ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) Delete(ctx context.Context, key string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM licenses WHERE license_key = $1`, key)
	if err != nil {
		r.logger.Error("Failed to delete license", zap.String("license_key", key), zap.Error(err))
		return false, fmt.Errorf("%w: delete license: %v", ierr.ErrStorage, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func scanLicense(row pgx.Row) (*license.License, error) {
	var lic license.License
	err := row.Scan(
		&lic.Key,
		&lic.CreatedAt,
		&lic.ExpiresAt,
		&lic.Active,
		&lic.OwnerName,
	)
	if err != nil {
		return nil, err
	}
	lic.CreatedAt = lic.CreatedAt.UTC()
	lic.ExpiresAt = lic.ExpiresAt.UTC()
	return &lic, nil
}
