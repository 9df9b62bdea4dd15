// Package refdata resolves customer and product references for display.
// The backend is inconsistent about id typing and sometimes hands back a
// display string with the id embedded ("Customer #7"), so lookups try several
// forms before falling back to the raw reference.
package refdata

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"deliveryflow/internal/backend"
	"deliveryflow/internal/orders"
)

var refPattern = regexp.MustCompile(`#\s*(\d+)`)

// ParseRef extracts the numeric id embedded in a reference string like
// "Customer #7". References without the pattern are returned as-is.
func ParseRef(ref string) string {
	if m := refPattern.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

// Customer is a resolved customer row.
type Customer struct {
	ID      string
	Name    string
	Address string
	Phone   string
}

// Product is a resolved product row.
type Product struct {
	ID    string
	Name  string
	Price float64
}

// Cache holds the customer and product reference tables. Both tables follow
// the same last-known-good policy as the order store: a failed fetch keeps
// the previous table.
type Cache struct {
	api backend.API
	log *logrus.Entry

	mu        sync.RWMutex
	customers []Customer
	products  []Product
	lastErr   error
}

// NewCache returns an empty cache backed by the given API client.
func NewCache(api backend.API, log *logrus.Entry) *Cache {
	return &Cache{api: api, log: log}
}

// Refresh fetches both reference tables. Each table is replaced
// independently, so a customers failure does not discard fresh products.
func (c *Cache) Refresh(ctx context.Context) error {
	var first error

	if dtos, err := c.api.ListCustomers(ctx); err != nil {
		first = fmt.Errorf("refresh customers: %w", err)
		c.log.WithError(err).Warn("customer refresh failed, keeping previous table")
	} else {
		rows := make([]Customer, 0, len(dtos))
		for _, d := range dtos {
			rows = append(rows, Customer{ID: orders.CoerceID(d.ID), Name: d.Name, Address: d.Address, Phone: d.Phone})
		}
		c.mu.Lock()
		c.customers = rows
		c.mu.Unlock()
	}

	if dtos, err := c.api.ListProducts(ctx); err != nil {
		if first == nil {
			first = fmt.Errorf("refresh products: %w", err)
		}
		c.log.WithError(err).Warn("product refresh failed, keeping previous table")
	} else {
		rows := make([]Product, 0, len(dtos))
		for _, d := range dtos {
			rows = append(rows, Product{ID: orders.CoerceID(d.ID), Name: d.Name, Price: d.Price})
		}
		c.mu.Lock()
		c.products = rows
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.lastErr = first
	c.mu.Unlock()
	return first
}

// LastError reports the most recent refresh failure, nil after a clean one.
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Customer resolves a customer reference. The boolean reports whether a
// table entry matched.
func (c *Cache) Customer(ref string) (Customer, bool) {
	want := ParseRef(ref)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, row := range c.customers {
		if idsEqual(row.ID, want) {
			return row, true
		}
	}
	return Customer{}, false
}

// CustomerName resolves a reference to a display name, falling back to
// "Customer #<id>" when the table has no match.
func (c *Cache) CustomerName(ref string) string {
	if row, ok := c.Customer(ref); ok {
		return row.Name
	}
	return "Customer #" + ParseRef(ref)
}

// Product resolves a product reference.
func (c *Cache) Product(ref string) (Product, bool) {
	want := ParseRef(ref)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, row := range c.products {
		if idsEqual(row.ID, want) {
			return row, true
		}
	}
	return Product{}, false
}

// ProductName resolves a reference to a display name, falling back to
// "Product #<id>".
func (c *Cache) ProductName(ref string) string {
	if row, ok := c.Product(ref); ok {
		return row.Name
	}
	return "Product #" + ParseRef(ref)
}

// idsEqual compares two ids across string and numeric forms, so "007" still
// finds the row stored as 7.
func idsEqual(a, b string) bool {
	if a == b {
		return true
	}
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	return errA == nil && errB == nil && na == nb
}
