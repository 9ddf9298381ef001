package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/handler/dto"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/metrics"
	"go.uber.org/zap"
)

// Completer is the upstream text completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const noAnswer = "No answer"

type CompletionService struct {
	licenses      *LicenseService
	completer     Completer
	maxInputChars int
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewCompletionService(licenses *LicenseService, completer Completer, maxInputChars int, m *metrics.Metrics, logger *zap.Logger) *CompletionService {
	return &CompletionService{
		licenses:      licenses,
		completer:     completer,
		maxInputChars: maxInputChars,
		metrics:       m,
		logger:        logger.Named("CompletionService"),
	}
}

// Ask forwards the text only when the license is valid for the calling device.
// A non-valid outcome is returned with an empty answer and no error.
func (s *CompletionService) Ask(ctx context.Context, req *dto.AskRequest) (string, license.Outcome, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", "", fmt.Errorf("%w: text is required", ierr.ErrValidation)
	}
	if s.maxInputChars > 0 && utf8.RuneCountInString(text) > s.maxInputChars {
		return "", "", fmt.Errorf("%w: text must be at most %d characters", ierr.ErrValidation, s.maxInputChars)
	}

	outcome, err := s.licenses.Validate(ctx, req.LicenseKey, req.ClientID)
	if err != nil {
		return "", "", err
	}
	if !outcome.Valid() {
		s.logger.Info("Rejected completion request", zap.String("key", req.LicenseKey), zap.String("outcome", string(outcome)))
		s.metrics.ObserveCompletion("rejected")
		return "", outcome, nil
	}

	answer, err := s.completer.Complete(ctx, text)
	if err != nil {
		s.logger.Error("Upstream completion failed", zap.String("key", req.LicenseKey), zap.Error(err))
		s.metrics.ObserveCompletion("upstream_error")
		if !errors.Is(err, ierr.ErrUpstream) {
			err = fmt.Errorf("%w: %v", ierr.ErrUpstream, err)
		}
		return "", outcome, err
	}

	if strings.TrimSpace(answer) == "" {
		answer = noAnswer
	}
	s.metrics.ObserveCompletion("ok")
	return answer, outcome, nil
}
