package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeLicenseStatsRefresh = "license:stats:refresh"
)

type LicenseStatsPayload struct{}

func NewLicenseStatsTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := LicenseStatsPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Minute)
	allOpts := append(opts, uniqueOpt, asynq.MaxRetry(0))

	return asynq.NewTask(TypeLicenseStatsRefresh, payloadBytes, allOpts...), nil
}
