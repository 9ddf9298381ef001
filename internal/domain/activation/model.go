package activation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("activation not found")
	ErrAlreadyBound = errors.New("license key is already bound to a device")
)

// Activation binds a license key to the one device allowed to use it.
// Records are written once and never changed.
type Activation struct {
	ClientID    string    `db:"client_id" json:"clientId"`
	Key         string    `db:"license_key" json:"key"`
	ActivatedAt time.Time `db:"activated_at" json:"activatedAt"`
}

// Repository is append-only. Append must be conditional: when an activation
// for the same key already exists nothing is written and ErrAlreadyBound is returned.
type Repository interface {
	FindByKey(ctx context.Context, key string) (*Activation, error)
	FindByClientAndKey(ctx context.Context, clientID, key string) (*Activation, error)
	Append(ctx context.Context, activation *Activation) error
}
