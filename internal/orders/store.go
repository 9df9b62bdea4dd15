package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deliveryflow/internal/backend"
)

var (
	// ErrNotFound means the order id is not in the current snapshot.
	ErrNotFound = errors.New("order not found")
	// ErrStartInFlight means a start-delivery request for this order is
	// already running; double-clicks land here.
	ErrStartInFlight = errors.New("start delivery already in flight")
)

// Store holds the canonical order snapshot and mediates all reads and writes.
// Refresh replaces the snapshot wholesale (last fetch wins); a failed fetch
// keeps the previous snapshot and surfaces the error through LastError.
type Store struct {
	api     backend.API
	log     *logrus.Entry
	nowFunc func() time.Time

	mu        sync.RWMutex
	orders    []Order
	index     map[string]int
	lastErr   error
	fetchedAt time.Time

	startMu  sync.Mutex
	starting map[string]bool
}

// NewStore returns an empty store backed by the given API client.
func NewStore(api backend.API, log *logrus.Entry) *Store {
	return &Store{
		api:      api,
		log:      log,
		nowFunc:  time.Now,
		index:    map[string]int{},
		starting: map[string]bool{},
	}
}

// Refresh fetches the latest snapshot and replaces the in-memory collection.
// On failure the previous snapshot stays intact; the order list is never
// silently cleared.
func (s *Store) Refresh(ctx context.Context) error {
	dtos, err := s.api.ListOrders(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.log.WithError(err).Warn("order refresh failed, keeping previous snapshot")
		return fmt.Errorf("refresh orders: %w", err)
	}

	normalized := NormalizeAll(dtos)
	index := make(map[string]int, len(normalized))
	for i, o := range normalized {
		index[o.ID] = i
	}

	s.mu.Lock()
	s.orders = normalized
	s.index = index
	s.lastErr = nil
	s.fetchedAt = s.nowFunc()
	s.mu.Unlock()

	s.log.WithField("count", len(normalized)).Debug("order snapshot replaced")
	return nil
}

// Snapshot returns a copy of the current order collection.
func (s *Store) Snapshot() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Get returns the order with the given id from the current snapshot.
func (s *Store) Get(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Order{}, false
	}
	return s.orders[i], true
}

// LastError reports the most recent fetch failure, or nil after a successful
// refresh. Callers surface it as a dismissible banner, not a fatal state.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// FetchedAt reports when the current snapshot was taken.
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Update sends a partial order update to the backend and applies the
// authoritative order it returns directly to the snapshot, so the collection
// never shows a stale status after a successful call. On failure the local
// state is untouched.
func (s *Store) Update(ctx context.Context, id string, patch backend.OrderPatch) (Order, error) {
	dto, err := s.api.UpdateOrder(ctx, id, patch)
	if err != nil {
		return Order{}, err
	}
	o := Normalize(dto)
	if o.ID == "" {
		o.ID = id
	}
	s.apply(o)
	return o, nil
}

// StartDelivery claims an order for a driver. It writes status=pending next
// to deliveryStatus=delivering; both fields are kept because upstream
// consumers read them independently. A per-order in-flight marker rejects a
// second invocation while the first request is still running. The backend
// itself is last-write-wins: two drivers on different instances racing for
// the same order is not guarded here.
func (s *Store) StartDelivery(ctx context.Context, id, driver string) (Order, error) {
	if _, ok := s.Get(id); !ok {
		return Order{}, ErrNotFound
	}

	s.startMu.Lock()
	if s.starting[id] {
		s.startMu.Unlock()
		return Order{}, ErrStartInFlight
	}
	s.starting[id] = true
	s.startMu.Unlock()

	defer func() {
		s.startMu.Lock()
		delete(s.starting, id)
		s.startMu.Unlock()
	}()

	patch := backend.OrderPatch{
		"assignedDriver":    driver,
		"deliveryStatus":    StatusDelivering,
		"status":            StatusPending,
		"deliveryStartTime": s.nowFunc().UTC(),
	}

	o, err := s.Update(ctx, id, patch)
	if err != nil {
		return Order{}, fmt.Errorf("start delivery %s: %w", id, err)
	}

	s.log.WithFields(logrus.Fields{"order": id, "driver": driver}).Info("delivery started")
	return o, nil
}

func (s *Store) apply(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[o.ID]; ok {
		s.orders[i] = o
		return
	}
	s.orders = append(s.orders, o)
	s.index[o.ID] = len(s.orders) - 1
}
