package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/quote"
)

const selectCustomer = `
SELECT id::text,
       name,
       COALESCE(email, ''),
       COALESCE(discount_tier, ''),
       COALESCE(address_line1, ''),
       COALESCE(address_line2, ''),
       COALESCE(city, ''),
       COALESCE(state, ''),
       COALESCE(postal_code, ''),
       COALESCE(country, '')
FROM cabinet_system.customers
WHERE id::text = $1 AND is_active`

// CustomerStore reads customers from Postgres.
type CustomerStore struct {
	DB Querier
}

// Customer loads one active customer.
func (s CustomerStore) Customer(ctx context.Context, id string) (quote.Customer, error) {
	var (
		c    quote.Customer
		addr pricing.Address
	)
	err := s.DB.QueryRow(ctx, selectCustomer, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Tier,
		&addr.Line1, &addr.Line2, &addr.City, &addr.State, &addr.PostalCode, &addr.Country,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Customer{}, quote.ErrCustomerNotFound
	}
	if err != nil {
		return quote.Customer{}, fmt.Errorf("query customer: %w", err)
	}
	if !addr.IsZero() {
		c.DefaultAddress = &addr
	}
	return c, nil
}
