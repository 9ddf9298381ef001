package filestore

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"go.uber.org/zap"
)

type ActivationRepository struct {
	mu     sync.Mutex
	file   lineFile
	logger *zap.Logger
}

func NewActivationRepository(dir string, logger *zap.Logger) *ActivationRepository {
	return &ActivationRepository{
		file:   lineFile{path: filepath.Join(dir, ActivationFileName)},
		logger: logger.Named("FileActivationRepository"),
	}
}

var _ activation.Repository = (*ActivationRepository)(nil)

func (r *ActivationRepository) load() ([]string, []*activation.Activation, error) {
	lines, err := r.file.readLines()
	if err != nil {
		r.logger.Error("Failed to read activation file", zap.String("path", r.file.path), zap.Error(err))
		return nil, nil, err
	}

	activations := make([]*activation.Activation, 0, len(lines))
	for i, line := range lines {
		act, err := decodeActivation(line)
		if err != nil {
			r.logger.Warn("Skipping malformed activation line", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		activations = append(activations, act)
	}
	return lines, activations, nil
}

func (r *ActivationRepository) FindByKey(ctx context.Context, key string) (*activation.Activation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, activations, err := r.load()
	if err != nil {
		return nil, err
	}
	return firstForKey(activations, key)
}

func (r *ActivationRepository) FindByClientAndKey(ctx context.Context, clientID, key string) (*activation.Activation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, activations, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, act := range activations {
		if act.Key == key && act.ClientID == clientID {
			return act, nil
		}
	}
	return nil, activation.ErrNotFound
}

// Append writes the activation only if the key has no binding yet.
func (r *ActivationRepository) Append(ctx context.Context, act *activation.Activation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lines, activations, err := r.load()
	if err != nil {
		return err
	}
	if _, err := firstForKey(activations, act.Key); err == nil {
		return activation.ErrAlreadyBound
	}

	lines = append(lines, encodeActivation(act))
	if err := r.file.writeLines(lines); err != nil {
		r.logger.Error("Failed to write activation file", zap.String("path", r.file.path), zap.Error(err))
		return err
	}

	r.logger.Debug("Activation appended", zap.String("license_key", act.Key), zap.String("client_id", act.ClientID))
	return nil
}

// firstForKey honours first-writer-wins even if an older file holds duplicates.
func firstForKey(activations []*activation.Activation, key string) (*activation.Activation, error) {
	for _, act := range activations {
		if act.Key == key {
			return act, nil
		}
	}
	return nil, activation.ErrNotFound
}
