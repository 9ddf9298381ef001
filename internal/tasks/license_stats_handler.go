package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/metrics"
	"go.uber.org/zap"
)

// LicenseStatsHandler publishes license counts by state. It only reads.
type LicenseStatsHandler struct {
	repo    license.Repository
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

func NewLicenseStatsHandler(repo license.Repository, m *metrics.Metrics, now func() time.Time, logger *zap.Logger) *LicenseStatsHandler {
	if now == nil {
		now = time.Now
	}
	return &LicenseStatsHandler{
		repo:    repo,
		metrics: m,
		now:     now,
		logger:  logger.Named("LicenseStatsHandler"),
	}
}

func (h *LicenseStatsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeLicenseStatsRefresh {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p LicenseStatsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for license stats task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	licenses, err := h.repo.List(ctx)
	if err != nil {
		h.logger.Error("Failed to list licenses for stats refresh", zap.Error(err))
		return fmt.Errorf("repository error listing licenses: %w", err)
	}

	now := h.now()
	var active, expired, deactivated int
	for _, lic := range licenses {
		switch {
		case !lic.Active:
			deactivated++
		case lic.IsExpired(now):
			expired++
		default:
			active++
		}
	}

	h.metrics.SetLicenseCounts(active, expired, deactivated)
	h.logger.Info("License stats refreshed",
		zap.Int("total", len(licenses)),
		zap.Int("active", active),
		zap.Int("expired", expired),
		zap.Int("deactivated", deactivated),
	)
	return nil
}
