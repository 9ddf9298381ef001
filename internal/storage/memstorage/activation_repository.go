package memstorage

import (
	"context"
	"sync"

	"github.com/makkenzo/device-license-api/internal/domain/activation"
)

type ActivationRepository struct {
	mu    sync.RWMutex
	byKey map[string]activation.Activation
}

func NewActivationRepository() *ActivationRepository {
	return &ActivationRepository{
		byKey: make(map[string]activation.Activation),
	}
}

var _ activation.Repository = (*ActivationRepository)(nil)

func (r *ActivationRepository) FindByKey(_ context.Context, key string) (*activation.Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	act, ok := r.byKey[key]
	if !ok {
		return nil, activation.ErrNotFound
	}
	return &act, nil
}

func (r *ActivationRepository) FindByClientAndKey(_ context.Context, clientID, key string) (*activation.Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	act, ok := r.byKey[key]
	if !ok || act.ClientID != clientID {
		return nil, activation.ErrNotFound
	}
	return &act, nil
}

func (r *ActivationRepository) Append(_ context.Context, act *activation.Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[act.Key]; ok {
		return activation.ErrAlreadyBound
	}
	r.byKey[act.Key] = *act
	return nil
}

// Len is the number of stored activations.
func (r *ActivationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
