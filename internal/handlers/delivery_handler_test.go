package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryflow/internal/backend"
	"deliveryflow/internal/collection"
	"deliveryflow/internal/orders"
	"deliveryflow/internal/refdata"
)

// fakeBackend is an in-memory sales backend behind the full stack: store,
// refdata cache, poller and collection flow are all real.
type fakeBackend struct {
	mu        sync.Mutex
	orders    []backend.OrderDTO
	customers []backend.CustomerDTO
	listErr   error
	payments  int
}

func (f *fakeBackend) ListOrders(ctx context.Context) ([]backend.OrderDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]backend.OrderDTO, len(f.orders))
	copy(out, f.orders)
	return out, nil
}

func (f *fakeBackend) UpdateOrder(ctx context.Context, id string, patch backend.OrderPatch) (backend.OrderDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if orders.CoerceID(f.orders[i].ID) != id {
			continue
		}
		dto := f.orders[i]
		if v, ok := patch["status"]; ok {
			dto.Status = v.(string)
		}
		if v, ok := patch["deliveryStatus"]; ok {
			dto.DeliveryStatus = v.(string)
		}
		if v, ok := patch["assignedDriver"]; ok {
			dto.AssignedDriver = v.(string)
		}
		if v, ok := patch["deliveryStartTime"]; ok {
			ts := v.(time.Time)
			dto.DeliveryStartTime = &ts
		}
		if v, ok := patch["deliveryEndTime"]; ok {
			ts := v.(time.Time)
			dto.DeliveryEndTime = &ts
		}
		if v, ok := patch["paidAt"]; ok {
			ts := v.(time.Time)
			dto.PaidAt = &ts
		}
		if v, ok := patch["isDelivered"]; ok {
			dto.IsDelivered = v.(bool)
		}
		if v, ok := patch["isPaid"]; ok {
			dto.IsPaid = v.(bool)
		}
		if v, ok := patch["paymentId"]; ok {
			dto.PaymentID = v.(string)
		}
		f.orders[i] = dto
		return dto, nil
	}
	return backend.OrderDTO{}, errors.New("unknown order")
}

func (f *fakeBackend) CreatePayment(ctx context.Context, req backend.PaymentRequest) (backend.PaymentDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments++
	return backend.PaymentDTO{ID: "pay-1"}, nil
}

func (f *fakeBackend) ListCustomers(ctx context.Context) ([]backend.CustomerDTO, error) {
	return f.customers, nil
}

func (f *fakeBackend) ListProducts(ctx context.Context) ([]backend.ProductDTO, error) {
	return nil, nil
}

func fptr(f float64) *float64 { return &f }

func newRouter(t *testing.T, api backend.API) (*gin.Engine, *orders.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	log := logrus.NewEntry(l)

	store := orders.NewStore(api, log)
	refs := refdata.NewCache(api, log)
	require.NoError(t, store.Refresh(context.Background()))
	require.NoError(t, refs.Refresh(context.Background()))

	flow := collection.New(collection.Config{
		Orders:    store,
		Payments:  api,
		Tolerance: 0.01,
		Log:       log,
	})
	poller := orders.NewPoller(time.Hour, log, store, refs)

	r := gin.New()
	RegisterDeliveryRoutes(r, HandlerConfig{
		Store:          store,
		Flow:           flow,
		Refs:           refs,
		Poller:         poller,
		CommissionRate: 0.10,
		Log:            log,
	})
	return r, store
}

func doJSON(r *gin.Engine, method, path, driver string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if driver != "" {
		req.Header.Set("X-Driver-ID", driver)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedOrders() *fakeBackend {
	start := time.Now().Add(-20 * time.Minute)
	return &fakeBackend{
		orders: []backend.OrderDTO{
			{ID: float64(1), DeliveryOption: "delivery", Total: fptr(150), Customer: float64(7)},
			{ID: float64(2), DeliveryOption: "delivery", Total: fptr(80), Customer: float64(7),
				AssignedDriver: "ali", DeliveryStatus: "delivering", DeliveryStartTime: &start},
			{ID: float64(3), DeliveryOption: "pickup", Total: fptr(20)},
		},
		customers: []backend.CustomerDTO{
			{ID: float64(7), Name: "Aisha", Address: "12 Elm St", Phone: "555-0107"},
		},
	}
}

func TestMissingDriverHeader(t *testing.T) {
	r, _ := newRouter(t, seedOrders())

	w := doJSON(r, http.MethodGet, "/delivery/orders", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing_driver_id")
}

func TestListOrders(t *testing.T) {
	r, _ := newRouter(t, seedOrders())

	w := doJSON(r, http.MethodGet, "/delivery/orders", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []orderView `json:"orders"`
		Stale  bool        `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// The pickup order is dropped entirely.
	require.Len(t, resp.Orders, 2)
	assert.False(t, resp.Stale)

	byID := map[string]orderView{}
	for _, v := range resp.Orders {
		byID[v.ID] = v
	}

	unclaimed := byID["1"]
	assert.Equal(t, "unclaimed", unclaimed.Bucket)
	assert.Equal(t, []string{"start_delivery"}, unclaimed.Actions)
	assert.Equal(t, "Aisha", unclaimed.Customer)
	assert.Equal(t, "12 Elm St", unclaimed.CustomerAddress)
	assert.InDelta(t, 15, unclaimed.Commission, 1e-9)

	mine := byID["2"]
	assert.Equal(t, "in_progress", mine.Bucket)
	assert.Equal(t, []string{"collect_payment"}, mine.Actions)
	require.NotNil(t, mine.ElapsedMinutes)
	assert.Equal(t, 20, *mine.ElapsedMinutes)
}

func TestListOrders_StaleBanner(t *testing.T) {
	api := seedOrders()
	r, store := newRouter(t, api)

	api.mu.Lock()
	api.listErr = errors.New("backend down")
	api.mu.Unlock()
	require.Error(t, store.Refresh(context.Background()))

	w := doJSON(r, http.MethodGet, "/delivery/orders", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []orderView `json:"orders"`
		Stale  bool        `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Stale, "failed fetch flags the list, never empties it")
	assert.Len(t, resp.Orders, 2)
}

func TestStartDelivery(t *testing.T) {
	r, _ := newRouter(t, seedOrders())

	w := doJSON(r, http.MethodPost, "/delivery/orders/1/start", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view orderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "in_progress", view.Bucket)
	assert.Equal(t, []string{"collect_payment"}, view.Actions)

	// Claimed orders cannot be started again.
	w = doJSON(r, http.MethodPost, "/delivery/orders/1/start", "bob", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_claimable")

	w = doJSON(r, http.MethodPost, "/delivery/orders/99/start", "ali", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCollectionRoundTrip(t *testing.T) {
	api := seedOrders()
	r, _ := newRouter(t, api)

	// Order 2 is ali's in-progress delivery with total 80.
	w := doJSON(r, http.MethodPost, "/delivery/orders/2/collection", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess sessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "entering_amount", sess.State)
	assert.InDelta(t, 80, sess.Amount, 1e-9, "prefilled with the total")

	// A mismatched amount is rejected inline.
	w = doJSON(r, http.MethodPut, "/delivery/orders/2/collection/amount", "ali", gin.H{"amount": 70})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "amountMismatch")

	// The exact total passes to the confirm step.
	w = doJSON(r, http.MethodPut, "/delivery/orders/2/collection/amount", "ali", gin.H{"amount": 80})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "confirming", sess.State)

	// Back, then forward again.
	w = doJSON(r, http.MethodPost, "/delivery/orders/2/collection/back", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPut, "/delivery/orders/2/collection/amount", "ali", gin.H{"amount": 80})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/delivery/orders/2/collection/confirm", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "completed", view.Bucket)
	assert.Empty(t, view.Actions)

	api.mu.Lock()
	assert.Equal(t, 1, api.payments)
	api.mu.Unlock()

	// The order is now terminal; a second collection attempt is refused.
	w = doJSON(r, http.MethodPost, "/delivery/orders/2/collection", "ali", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_completed")
}

func TestCollection_GuardsByBucket(t *testing.T) {
	r, _ := newRouter(t, seedOrders())

	// Unclaimed: must be started first.
	w := doJSON(r, http.MethodPost, "/delivery/orders/1/collection", "ali", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_collectable")

	// Another driver's delivery.
	w = doJSON(r, http.MethodPost, "/delivery/orders/2/collection", "bob", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	// No session yet: the amount step has nothing to act on.
	w = doJSON(r, http.MethodPut, "/delivery/orders/1/collection/amount", "ali", gin.H{"amount": 80})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no_collection_session")
}

func TestManualRefresh(t *testing.T) {
	api := seedOrders()
	r, _ := newRouter(t, api)

	w := doJSON(r, http.MethodPost, "/delivery/refresh", "ali", nil)
	require.Equal(t, http.StatusOK, w.Code)

	api.mu.Lock()
	api.listErr = errors.New("backend down")
	api.mu.Unlock()

	w = doJSON(r, http.MethodPost, "/delivery/refresh", "ali", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refresh_failed")
}
