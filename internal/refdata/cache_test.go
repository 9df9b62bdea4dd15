package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryflow/internal/backend"
)

type fakeAPI struct {
	customers    []backend.CustomerDTO
	products     []backend.ProductDTO
	customersErr error
	productsErr  error
}

func (f *fakeAPI) ListOrders(ctx context.Context) ([]backend.OrderDTO, error) { return nil, nil }
func (f *fakeAPI) UpdateOrder(ctx context.Context, id string, patch backend.OrderPatch) (backend.OrderDTO, error) {
	return backend.OrderDTO{}, nil
}
func (f *fakeAPI) CreatePayment(ctx context.Context, req backend.PaymentRequest) (backend.PaymentDTO, error) {
	return backend.PaymentDTO{}, nil
}
func (f *fakeAPI) ListCustomers(ctx context.Context) ([]backend.CustomerDTO, error) {
	return f.customers, f.customersErr
}
func (f *fakeAPI) ListProducts(ctx context.Context) ([]backend.ProductDTO, error) {
	return f.products, f.productsErr
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestParseRef(t *testing.T) {
	assert.Equal(t, "7", ParseRef("Customer #7"))
	assert.Equal(t, "42", ParseRef("Product # 42"))
	assert.Equal(t, "7", ParseRef("7"))
	assert.Equal(t, "abc", ParseRef("abc"))
}

func TestCustomerResolution(t *testing.T) {
	api := &fakeAPI{customers: []backend.CustomerDTO{
		{ID: float64(7), Name: "Aisha", Address: "12 Elm St", Phone: "555-0107"},
		{ID: "9", Name: "Marco"},
	}}
	c := NewCache(api, testLog())
	require.NoError(t, c.Refresh(context.Background()))

	// Numeric table id matched from an embedded-reference string.
	assert.Equal(t, "Aisha", c.CustomerName("Customer #7"))
	// String table id matched from a raw id.
	assert.Equal(t, "Marco", c.CustomerName("9"))
	// Zero-padded ids still match numerically.
	assert.Equal(t, "Aisha", c.CustomerName("Customer #007"))

	row, ok := c.Customer("7")
	require.True(t, ok)
	assert.Equal(t, "12 Elm St", row.Address)
	assert.Equal(t, "555-0107", row.Phone)
}

func TestCustomerResolution_FallsBack(t *testing.T) {
	c := NewCache(&fakeAPI{}, testLog())
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, "Customer #7", c.CustomerName("Customer #7"))
	assert.Equal(t, "Customer #3", c.CustomerName("3"))
}

func TestProductResolution(t *testing.T) {
	api := &fakeAPI{products: []backend.ProductDTO{
		{ID: float64(4), Name: "Margherita", Price: 9.5},
	}}
	c := NewCache(api, testLog())
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, "Margherita", c.ProductName("Product #4"))
	p, ok := c.Product("4")
	require.True(t, ok)
	assert.InDelta(t, 9.5, p.Price, 1e-9)

	assert.Equal(t, "Product #99", c.ProductName("Product #99"))
}

func TestRefresh_KeepsTablesIndependently(t *testing.T) {
	api := &fakeAPI{
		customers: []backend.CustomerDTO{{ID: "1", Name: "Aisha"}},
		products:  []backend.ProductDTO{{ID: "4", Name: "Margherita"}},
	}
	c := NewCache(api, testLog())
	require.NoError(t, c.Refresh(context.Background()))

	// Customers fetch starts failing; the stale table stays usable while the
	// fresh products replace the old ones.
	api.customersErr = errors.New("boom")
	api.products = []backend.ProductDTO{{ID: "5", Name: "Calzone"}}

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Error(t, c.LastError())

	assert.Equal(t, "Aisha", c.CustomerName("1"))
	assert.Equal(t, "Calzone", c.ProductName("5"))

	// Recovery clears the error flag.
	api.customersErr = nil
	require.NoError(t, c.Refresh(context.Background()))
	assert.NoError(t, c.LastError())
}
