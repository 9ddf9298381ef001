package filestore

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/makkenzo/device-license-api/internal/domain/license"
	"go.uber.org/zap"
)

type LicenseRepository struct {
	mu     sync.Mutex
	file   lineFile
	logger *zap.Logger
}

func NewLicenseRepository(dir string, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		file:   lineFile{path: filepath.Join(dir, LicenseFileName)},
		logger: logger.Named("FileLicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

// licenseRow keeps the raw line so that malformed records survive a rewrite untouched.
type licenseRow struct {
	raw string
	lic *license.License
}

func (r *LicenseRepository) load() ([]licenseRow, error) {
	lines, err := r.file.readLines()
	if err != nil {
		r.logger.Error("Failed to read license file", zap.String("path", r.file.path), zap.Error(err))
		return nil, err
	}

	rows := make([]licenseRow, 0, len(lines))
	for i, line := range lines {
		lic, err := decodeLicense(line)
		if err != nil {
			r.logger.Warn("Skipping malformed license line", zap.Int("line", i+1), zap.Error(err))
			rows = append(rows, licenseRow{raw: line})
			continue
		}
		rows = append(rows, licenseRow{raw: line, lic: lic})
	}
	return rows, nil
}

func (r *LicenseRepository) store(rows []licenseRow) error {
	lines := make([]string, len(rows))
	for i, row := range rows {
		if row.lic == nil {
			lines[i] = row.raw
			continue
		}
		lines[i] = encodeLicense(row.lic)
	}
	if err := r.file.writeLines(lines); err != nil {
		r.logger.Error("Failed to write license file", zap.String("path", r.file.path), zap.Error(err))
		return err
	}
	return nil
}

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.lic != nil && row.lic.Key == lic.Key {
			r.logger.Warn("Attempted to create license with duplicate key", zap.String("license_key", lic.Key))
			return license.ErrDuplicateKey
		}
	}

	stored := *lic
	rows = append(rows, licenseRow{lic: &stored})
	if err := r.store(rows); err != nil {
		return err
	}

	r.logger.Debug("License appended", zap.String("license_key", lic.Key))
	return nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.lic != nil && row.lic.Key == key {
			return row.lic, nil
		}
	}
	return nil, license.ErrNotFound
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load()
	if err != nil {
		return nil, err
	}
	licenses := make([]*license.License, 0, len(rows))
	for _, row := range rows {
		if row.lic != nil {
			licenses = append(licenses, row.lic)
		}
	}
	return licenses, nil
}

func (r *LicenseRepository) Update(ctx context.Context, lic *license.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load()
	if err != nil {
		return err
	}

	found := false
	for i, row := range rows {
		if row.lic != nil && row.lic.Key == lic.Key {
			updated := *lic
			rows[i].lic = &updated
			found = true
			break
		}
	}
	if !found {
		return license.ErrNotFound
	}
	return r.store(rows)
}

func (r *LicenseRepository) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load()
	if err != nil {
		return false, err
	}

	kept := make([]licenseRow, 0, len(rows))
	for _, row := range rows {
		if row.lic != nil && row.lic.Key == key {
			continue
		}
		kept = append(kept, row)
	}
	if len(kept) == len(rows) {
		return false, nil
	}
	if err := r.store(kept); err != nil {
		return false, err
	}
	return true, nil
}
