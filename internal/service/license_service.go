package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/handler/dto"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/lock"
	"github.com/makkenzo/device-license-api/internal/metrics"
	"github.com/makkenzo/device-license-api/internal/util"
	"go.uber.org/zap"
)

const (
	maxKeyAttempts = 5

	// Persisted records are ';' separated and newline terminated.
	forbiddenRecordChars = ";\r\n"
)

const (
	opCreate     = "create"
	opActivate   = "activate"
	opValidate   = "validate"
	opDeactivate = "deactivate"
	opDelete     = "delete"
)

type LicenseService struct {
	licenses    license.Repository
	activations activation.Repository
	locker      lock.Locker
	metrics     *metrics.Metrics
	logger      *zap.Logger

	now                 func() time.Time
	newKey              func() (string, error)
	defaultDurationDays int
	maxDurationDays     int
}

type Option func(*LicenseService)

func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) { s.now = now }
}

func WithKeyGenerator(gen func() (string, error)) Option {
	return func(s *LicenseService) { s.newKey = gen }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LicenseService) { s.metrics = m }
}

// WithDurationLimits sets the duration used when none is given and the upper bound.
func WithDurationLimits(defaultDays, maxDays int) Option {
	return func(s *LicenseService) {
		if defaultDays > 0 {
			s.defaultDurationDays = defaultDays
		}
		if maxDays > 0 {
			s.maxDurationDays = maxDays
		}
	}
}

func NewLicenseService(licenses license.Repository, activations activation.Repository, locker lock.Locker, logger *zap.Logger, opts ...Option) *LicenseService {
	s := &LicenseService{
		licenses:            licenses,
		activations:         activations,
		locker:              locker,
		logger:              logger.Named("LicenseService"),
		now:                 time.Now,
		newKey:              util.GenerateLicenseKey,
		defaultDurationDays: license.DefaultDurationDays,
		maxDurationDays:     3650,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LicenseService) CreateLicense(ctx context.Context, req *dto.CreateLicenseRequest) (*license.License, error) {
	durationDays := s.defaultDurationDays
	if req.DurationDays != nil {
		durationDays = *req.DurationDays
	}
	if durationDays < 1 || durationDays > s.maxDurationDays {
		return nil, fmt.Errorf("%w: durationDays must be between 1 and %d", ierr.ErrValidation, s.maxDurationDays)
	}

	var ownerName string
	if req.OwnerName != nil {
		ownerName = strings.TrimSpace(*req.OwnerName)
	}
	if len(ownerName) > license.MaxOwnerNameLength {
		return nil, fmt.Errorf("%w: ownerName must be at most %d characters", ierr.ErrValidation, license.MaxOwnerNameLength)
	}
	if strings.ContainsAny(ownerName, forbiddenRecordChars) {
		return nil, fmt.Errorf("%w: ownerName must not contain ';' or line breaks", ierr.ErrValidation)
	}

	s.logger.Info("Attempting to create a new license", zap.Int("duration_days", durationDays), zap.String("owner", ownerName))

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.newKey()
		if err != nil {
			s.logger.Error("Failed to generate license key", zap.Error(err))
			s.metrics.ObserveOperation(opCreate, "error")
			return nil, fmt.Errorf("%w: generating key: %v", ierr.ErrInternalServer, err)
		}

		// A deleted license leaves its activation behind; never hand out that key again.
		if _, err := s.activations.FindByKey(ctx, key); err == nil {
			s.logger.Warn("Generated key collides with an existing activation, retrying", zap.Int("attempt", attempt))
			continue
		} else if !errors.Is(err, activation.ErrNotFound) {
			s.metrics.ObserveOperation(opCreate, "error")
			return nil, fmt.Errorf("checking activation for new key: %w", err)
		}

		newLicense := license.New(key, s.now(), durationDays, ownerName)
		err = s.licenses.Create(ctx, newLicense)
		if errors.Is(err, license.ErrDuplicateKey) {
			s.logger.Warn("Generated key collides with an existing license, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.logger.Error("Failed to create license via repository", zap.Error(err))
			s.metrics.ObserveOperation(opCreate, "error")
			return nil, fmt.Errorf("repository error during license creation: %w", err)
		}

		s.logger.Info("License created successfully", zap.String("key", newLicense.Key), zap.Time("expires_at", newLicense.ExpiresAt))
		s.metrics.ObserveOperation(opCreate, "created")
		return newLicense, nil
	}

	s.metrics.ObserveOperation(opCreate, "error")
	return nil, fmt.Errorf("%w: could not generate a unique license key after %d attempts", ierr.ErrConflict, maxKeyAttempts)
}

// Activate binds key to clientID. The first successful binding is permanent;
// repeating it from the same device is reported as AlreadyBoundHere.
func (s *LicenseService) Activate(ctx context.Context, key, clientID string) (license.Outcome, error) {
	key, clientID, err := normalizeBinding(key, clientID)
	if err != nil {
		return "", err
	}

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to acquire license lock", zap.String("key", key), zap.Error(err))
		s.metrics.ObserveOperation(opActivate, "error")
		return "", err
	}
	defer unlock()

	outcome, err := s.activate(ctx, key, clientID)
	if err != nil {
		s.metrics.ObserveOperation(opActivate, "error")
		return "", err
	}

	s.logger.Info("Activation processed", zap.String("key", key), zap.String("client_id", clientID), zap.String("outcome", string(outcome)))
	s.metrics.ObserveOperation(opActivate, string(outcome))
	return outcome, nil
}

func (s *LicenseService) activate(ctx context.Context, key, clientID string) (license.Outcome, error) {
	now := s.now()
	if _, outcome, err := s.checkLicense(ctx, key, now); err != nil || outcome != "" {
		return outcome, err
	}

	existing, err := s.activations.FindByKey(ctx, key)
	switch {
	case err == nil:
		return bindingOutcome(existing, clientID, license.OutcomeAlreadyBoundHere, license.OutcomeAlreadyBoundElsewhere), nil
	case !errors.Is(err, activation.ErrNotFound):
		s.logger.Error("Failed to read activation", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("reading activation: %w", err)
	}

	err = s.activations.Append(ctx, &activation.Activation{
		ClientID:    clientID,
		Key:         key,
		ActivatedAt: now.UTC(),
	})
	if errors.Is(err, activation.ErrAlreadyBound) {
		// Another writer won between our read and the conditional append.
		winner, findErr := s.activations.FindByKey(ctx, key)
		if findErr != nil {
			return "", fmt.Errorf("re-reading activation after conflict: %w", findErr)
		}
		return bindingOutcome(winner, clientID, license.OutcomeAlreadyBoundHere, license.OutcomeAlreadyBoundElsewhere), nil
	}
	if err != nil {
		s.logger.Error("Failed to persist activation", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("persisting activation: %w", err)
	}
	return license.OutcomeActivated, nil
}

// Validate re-checks the license and its binding without writing anything.
func (s *LicenseService) Validate(ctx context.Context, key, clientID string) (license.Outcome, error) {
	key, clientID, err := normalizeBinding(key, clientID)
	if err != nil {
		return "", err
	}

	outcome, err := s.validate(ctx, key, clientID)
	if err != nil {
		s.metrics.ObserveOperation(opValidate, "error")
		return "", err
	}

	s.logger.Debug("Validation processed", zap.String("key", key), zap.String("client_id", clientID), zap.String("outcome", string(outcome)))
	s.metrics.ObserveOperation(opValidate, string(outcome))
	return outcome, nil
}

func (s *LicenseService) validate(ctx context.Context, key, clientID string) (license.Outcome, error) {
	if _, outcome, err := s.checkLicense(ctx, key, s.now()); err != nil || outcome != "" {
		return outcome, err
	}

	existing, err := s.activations.FindByKey(ctx, key)
	if errors.Is(err, activation.ErrNotFound) {
		return license.OutcomeNotActivated, nil
	}
	if err != nil {
		s.logger.Error("Failed to read activation", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("reading activation: %w", err)
	}
	return bindingOutcome(existing, clientID, license.OutcomeValid, license.OutcomeBoundElsewhere), nil
}

// checkLicense applies the guards shared by Activate and Validate. A non-empty
// outcome means the license cannot be used.
func (s *LicenseService) checkLicense(ctx context.Context, key string, now time.Time) (*license.License, license.Outcome, error) {
	lic, err := s.licenses.FindByKey(ctx, key)
	if errors.Is(err, license.ErrNotFound) {
		return nil, license.OutcomeNotFound, nil
	}
	if err != nil {
		s.logger.Error("Failed to read license", zap.String("key", key), zap.Error(err))
		return nil, "", fmt.Errorf("reading license: %w", err)
	}

	switch {
	case !lic.Active:
		return lic, license.OutcomeDeactivated, nil
	case lic.IsExpired(now):
		return lic, license.OutcomeExpired, nil
	}
	return lic, "", nil
}

func (s *LicenseService) DeactivateLicense(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	s.logger.Info("Attempting to deactivate license", zap.String("key", key))

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.metrics.ObserveOperation(opDeactivate, "error")
		return err
	}
	defer unlock()

	lic, err := s.licenses.FindByKey(ctx, key)
	if errors.Is(err, license.ErrNotFound) {
		s.metrics.ObserveOperation(opDeactivate, string(license.OutcomeNotFound))
		return fmt.Errorf("%w: license %s", ierr.ErrNotFound, key)
	}
	if err != nil {
		s.metrics.ObserveOperation(opDeactivate, "error")
		return fmt.Errorf("reading license: %w", err)
	}

	if lic.Active {
		lic.Active = false
		if err := s.licenses.Update(ctx, lic); err != nil {
			s.metrics.ObserveOperation(opDeactivate, "error")
			if errors.Is(err, license.ErrNotFound) {
				return fmt.Errorf("%w: license %s", ierr.ErrNotFound, key)
			}
			s.logger.Error("Failed to persist deactivation", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("repository error deactivating license: %w", err)
		}
	}

	s.logger.Info("License deactivated", zap.String("key", key))
	s.metrics.ObserveOperation(opDeactivate, string(license.OutcomeDeactivated))
	return nil
}

// DeleteLicense removes the license record. Its activation, if any, stays in
// place and keeps the key from ever being issued again.
func (s *LicenseService) DeleteLicense(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	s.logger.Info("Attempting to delete license", zap.String("key", key))

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.metrics.ObserveOperation(opDelete, "error")
		return err
	}
	defer unlock()

	deleted, err := s.licenses.Delete(ctx, key)
	if err != nil {
		s.logger.Error("Failed to delete license", zap.String("key", key), zap.Error(err))
		s.metrics.ObserveOperation(opDelete, "error")
		return fmt.Errorf("repository error deleting license: %w", err)
	}
	if !deleted {
		s.metrics.ObserveOperation(opDelete, string(license.OutcomeNotFound))
		return fmt.Errorf("%w: license %s", ierr.ErrNotFound, key)
	}

	s.logger.Info("License deleted", zap.String("key", key))
	s.metrics.ObserveOperation(opDelete, "deleted")
	return nil
}

func (s *LicenseService) ListLicenses(ctx context.Context) ([]*license.License, error) {
	licenses, err := s.licenses.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list licenses", zap.Error(err))
		return nil, fmt.Errorf("repository error listing licenses: %w", err)
	}
	s.logger.Debug("Licenses listed", zap.Int("count", len(licenses)))
	return licenses, nil
}

// Now is the service clock, shared with handlers that render expiry state.
func (s *LicenseService) Now() time.Time {
	return s.now()
}

func bindingOutcome(existing *activation.Activation, clientID string, here, elsewhere license.Outcome) license.Outcome {
	if existing.ClientID == clientID {
		return here
	}
	return elsewhere
}

func normalizeBinding(key, clientID string) (string, string, error) {
	key = strings.TrimSpace(key)
	clientID = strings.TrimSpace(clientID)
	if key == "" || clientID == "" {
		return "", "", fmt.Errorf("%w: key and clientId are required", ierr.ErrValidation)
	}
	if strings.ContainsAny(clientID, forbiddenRecordChars) {
		return "", "", fmt.Errorf("%w: clientId must not contain ';' or line breaks", ierr.ErrValidation)
	}
	return key, clientID, nil
}
