package license

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("license not found")
	ErrDuplicateKey = errors.New("license key already exists")
)

const (
	DefaultDurationDays = 30
	MaxOwnerNameLength  = 200
)

// License is one issuable entitlement. Only Active ever changes after creation.
type License struct {
	Key       string    `db:"license_key" json:"key"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Active    bool      `db:"active" json:"active"`
	OwnerName string    `db:"owner_name" json:"ownerName"`
}

func New(key string, now time.Time, durationDays int, ownerName string) *License {
	createdAt := now.UTC()
	return &License{
		Key:       key,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.AddDate(0, 0, durationDays),
		Active:    true,
		OwnerName: ownerName,
	}
}

// IsExpired reports whether now is strictly past ExpiresAt.
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
