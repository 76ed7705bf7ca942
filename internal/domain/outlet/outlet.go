// Package outlet describes retail locations that orders can be assigned to.
package outlet

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an outlet id does not resolve.
var ErrNotFound = errors.New("outlet not found")

// Outlet is a physical retail location.
type Outlet struct {
	ID   string
	Name string
	City string
}

// Repository looks up outlets.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Outlet, error)
}
