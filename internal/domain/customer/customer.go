// Package customer holds the customer identity used by checkout.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer matches the lookup.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered shopper.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Repository looks up customers.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Customer, error)
	// FindByEmailOrPhone returns the first customer whose email equals email
	// or whose phone equals phone. Empty arguments never match.
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*Customer, error)
}

// Lookup identifies the customer placing an order.
type Lookup struct {
	ID    string
	Email string
	Phone string
}

// Resolve finds the customer by id, then by email or phone. The first match
// wins; ErrNotFound is returned when nothing matches.
func Resolve(ctx context.Context, repo Repository, l Lookup) (*Customer, error) {
	if l.ID != "" {
		c, err := repo.FindByID(ctx, l.ID)
		switch {
		case err == nil:
			return c, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find customer by id")
		}
	}
	if l.Email == "" && l.Phone == "" {
		return nil, ErrNotFound
	}
	c, err := repo.FindByEmailOrPhone(ctx, l.Email, l.Phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find customer by contact")
	}
	return c, nil
}
