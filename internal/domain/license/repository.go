package license

import (
	"context"
)

// Repository owns every License record. FindByKey and Update return ErrNotFound
// for unknown keys; Create returns ErrDuplicateKey when the key is taken.
type Repository interface {
	Create(ctx context.Context, license *License) error
	FindByKey(ctx context.Context, key string) (*License, error)
	List(ctx context.Context) ([]*License, error)
	Update(ctx context.Context, license *License) error
	Delete(ctx context.Context, key string) (bool, error)
}
