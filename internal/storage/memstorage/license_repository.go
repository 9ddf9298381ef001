package memstorage

import (
	"context"
	"sync"

	"github.com/makkenzo/device-license-api/internal/domain/license"
)

type LicenseRepository struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]*license.License
}

func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		byKey: make(map[string]*license.License),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(_ context.Context, lic *license.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[lic.Key]; ok {
		return license.ErrDuplicateKey
	}
	stored := *lic
	r.byKey[lic.Key] = &stored
	r.order = append(r.order, lic.Key)
	return nil
}

func (r *LicenseRepository) FindByKey(_ context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.byKey[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	licCopy := *lic
	return &licCopy, nil
}

func (r *LicenseRepository) List(_ context.Context) ([]*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	licenses := make([]*license.License, 0, len(r.order))
	for _, key := range r.order {
		licCopy := *r.byKey[key]
		licenses = append(licenses, &licCopy)
	}
	return licenses, nil
}

func (r *LicenseRepository) Update(_ context.Context, lic *license.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[lic.Key]; !ok {
		return license.ErrNotFound
	}
	stored := *lic
	r.byKey[lic.Key] = &stored
	return nil
}

func (r *LicenseRepository) Delete(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; !ok {
		return false, nil
	}
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}
