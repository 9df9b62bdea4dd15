// Package collection implements the two-phase cash-collection flow that
// turns an in-progress delivery into a paid, delivered order.
//
// Per order there is at most one session walking
// entering_amount -> confirming -> submitting; submitting either completes
// (payment created, order closed out, session gone) or falls back to
// entering_amount with the typed amount preserved so the driver can retry.
package collection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deliveryflow/internal/aws"
	"deliveryflow/internal/backend"
	"deliveryflow/internal/idempotency"
	"deliveryflow/internal/orders"
	"deliveryflow/internal/workflow"
)

// State of a collection session.
type State string

const (
	StateEntering   State = "entering_amount"
	StateConfirming State = "confirming"
	StateSubmitting State = "submitting"
)

// Validation/error codes surfaced to the driver UI.
const (
	CodeAmountMismatch = "amountMismatch"
	CodePaymentFailed  = "paymentFailed"
)

var (
	ErrNoSession        = errors.New("no active collection session for order")
	ErrAlreadyCompleted = errors.New("order is already delivered and paid")
	ErrNotCollectable   = errors.New("order is not an in-progress delivery for this driver")
	ErrProcessing       = errors.New("collection submission already in flight")
	ErrAmountMismatch   = errors.New("entered amount does not match order total")
	ErrWrongState       = errors.New("action not legal in current session state")
	ErrPaymentRejected  = errors.New("payment was rejected by the backend")
)

// Session is the transient per-order collection state. Copies of it are
// returned to callers; the flow owns the original.
type Session struct {
	OrderID string
	Driver  string
	State   State

	// Amount is the cash figure the driver typed, prefilled with the order
	// total when the session opens.
	Amount float64
	Total  float64

	// ValidationError holds the last inline error code, cleared on edit.
	ValidationError string

	// PaymentID is set once a payment record exists. It survives an order
	// update failure so a retry reuses the payment instead of creating a
	// second one.
	PaymentID string

	StartedAt time.Time

	processing bool
}

// OrderSource is the slice of the order store the flow needs.
type OrderSource interface {
	Get(id string) (orders.Order, bool)
	Update(ctx context.Context, id string, patch backend.OrderPatch) (orders.Order, error)
}

// PaymentCreator creates payment records on the sales backend.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, req backend.PaymentRequest) (backend.PaymentDTO, error)
}

// Recorder is the optional cross-process collection guard.
type Recorder interface {
	CreateIfNotExists(ctx context.Context, orderID string, amount float64) (bool, error)
	Get(ctx context.Context, orderID string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, orderID, paymentID string) error
	MarkFailed(ctx context.Context, orderID, note string) error
}

// EventPublisher publishes completed-delivery events. Optional; failures are
// logged, never surfaced to the driver.
type EventPublisher interface {
	SendDeliveryCompleted(ctx context.Context, ev aws.DeliveryCompletedEvent) error
}

// Config groups the flow's dependencies. Records and Events may be nil.
type Config struct {
	Orders         OrderSource
	Payments       PaymentCreator
	Records        Recorder
	Events         EventPublisher
	Tolerance      float64
	CommissionRate float64
	Log            *logrus.Entry
}

// Flow runs collection sessions.
type Flow struct {
	orders         OrderSource
	payments       PaymentCreator
	records        Recorder
	events         EventPublisher
	tolerance      float64
	commissionRate float64
	log            *logrus.Entry
	nowFunc        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns a Flow. A non-positive tolerance falls back to one cent.
func New(cfg Config) *Flow {
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = 0.01
	}
	return &Flow{
		orders:         cfg.Orders,
		payments:       cfg.Payments,
		records:        cfg.Records,
		events:         cfg.Events,
		tolerance:      tol,
		commissionRate: cfg.CommissionRate,
		log:            cfg.Log,
		nowFunc:        time.Now,
		sessions:       map[string]*Session{},
	}
}

// Begin opens a collection session for an order the driver is currently
// delivering. The amount is prefilled with the order total. Completed orders
// are terminal: they cannot be collected again.
func (f *Flow) Begin(orderID, driver string) (Session, error) {
	o, ok := f.orders.Get(orderID)
	if !ok {
		return Session{}, orders.ErrNotFound
	}

	switch workflow.Classify(o, driver) {
	case workflow.BucketInProgress:
		// collectable
	case workflow.BucketCompleted:
		return Session{}, ErrAlreadyCompleted
	default:
		return Session{}, ErrNotCollectable
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.sessions[orderID]; ok && prev.processing {
		return Session{}, ErrProcessing
	}
	sess := &Session{
		OrderID:   orderID,
		Driver:    driver,
		State:     StateEntering,
		Amount:    o.Total,
		Total:     o.Total,
		StartedAt: f.nowFunc(),
	}
	f.sessions[orderID] = sess
	return *sess, nil
}

// EnterAmount records an edited amount and clears any prior validation
// error. Legal while entering or confirming (editing from the confirm step
// implies going back first).
func (f *Flow) EnterAmount(orderID string, amount float64) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[orderID]
	if !ok {
		return Session{}, ErrNoSession
	}
	if sess.processing {
		return Session{}, ErrProcessing
	}
	sess.State = StateEntering
	sess.Amount = amount
	sess.ValidationError = ""
	return *sess, nil
}

// SubmitAmount validates the entered amount and moves to the confirm step.
// The amount must be positive and within the tolerance of the order total
// (absolute difference, not a percentage). A failed check stays on the
// amount step with an inline error.
func (f *Flow) SubmitAmount(orderID string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[orderID]
	if !ok {
		return Session{}, ErrNoSession
	}
	if sess.processing {
		return Session{}, ErrProcessing
	}
	if sess.State != StateEntering {
		return *sess, ErrWrongState
	}

	if sess.Amount <= 0 || math.Abs(sess.Amount-sess.Total) > f.tolerance {
		sess.ValidationError = CodeAmountMismatch
		return *sess, ErrAmountMismatch
	}

	sess.ValidationError = ""
	sess.State = StateConfirming
	return *sess, nil
}

// Back returns from the confirm step to the amount step. No side effects.
func (f *Flow) Back(orderID string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[orderID]
	if !ok {
		return Session{}, ErrNoSession
	}
	if sess.processing {
		return Session{}, ErrProcessing
	}
	if sess.State != StateConfirming {
		return *sess, ErrWrongState
	}
	sess.State = StateEntering
	return *sess, nil
}

// Session returns a copy of the current session, if any.
func (f *Flow) Session(orderID string) (Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[orderID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Confirm executes the collection: create the payment record, then close out
// the order (delivered, paid, end time stamped). A processing flag rejects
// re-submission while a request is in flight, so a double-confirm yields at
// most one payment and one completion update.
//
// The two backend calls are not atomic. If the order update fails after the
// payment was created, the session keeps the payment id and drops back to
// the amount step; the retry reuses that payment.
func (f *Flow) Confirm(ctx context.Context, orderID string) (orders.Order, error) {
	f.mu.Lock()
	sess, ok := f.sessions[orderID]
	if !ok {
		f.mu.Unlock()
		return orders.Order{}, ErrNoSession
	}
	if sess.processing {
		f.mu.Unlock()
		return orders.Order{}, ErrProcessing
	}
	if sess.State != StateConfirming {
		f.mu.Unlock()
		return orders.Order{}, ErrWrongState
	}
	sess.processing = true
	sess.State = StateSubmitting
	amount := sess.Amount
	driver := sess.Driver
	paymentID := sess.PaymentID
	f.mu.Unlock()

	now := f.nowFunc().UTC()

	if f.records != nil && paymentID == "" {
		created, err := f.records.CreateIfNotExists(ctx, orderID, amount)
		if err != nil {
			// The in-process flag still guards this instance; availability
			// wins over the extra cross-process check.
			f.log.WithError(err).WithField("order", orderID).Warn("collection record write failed")
		} else if !created {
			rec, gerr := f.records.Get(ctx, orderID)
			if gerr == nil && rec != nil {
				switch rec.Status {
				case idempotency.StatusDone:
					// Payment already exists; reuse it and finish the order.
					paymentID = rec.PaymentID
				case idempotency.StatusInProgress:
					f.fail(orderID, CodePaymentFailed)
					return orders.Order{}, fmt.Errorf("order %s: %w", orderID, ErrProcessing)
				}
			}
		}
	}

	if paymentID == "" {
		req := backend.PaymentRequest{
			OrderID:     orderID,
			Amount:      amount,
			CollectedBy: driver,
			Method:      "cash",
			Status:      "completed",
			CollectedAt: now,
			PaidAt:      now,
		}
		dto, err := f.payments.CreatePayment(ctx, req)
		if err != nil {
			if f.records != nil {
				_ = f.records.MarkFailed(ctx, orderID, fmt.Sprintf("payment_create_failed: %v", err))
			}
			f.fail(orderID, CodePaymentFailed)
			return orders.Order{}, fmt.Errorf("%w: %v", ErrPaymentRejected, err)
		}
		paymentID = orders.CoerceID(dto.ID)
		if paymentID == "" {
			paymentID = uuid.NewString()
		}
		f.mu.Lock()
		if s, ok := f.sessions[orderID]; ok {
			s.PaymentID = paymentID
		}
		f.mu.Unlock()
	}

	patch := backend.OrderPatch{
		"status":          orders.StatusDelivered,
		"deliveryStatus":  orders.StatusDelivered,
		"isDelivered":     true,
		"isPaid":          true,
		"paidAt":          now,
		"deliveryEndTime": now,
		"paymentId":       paymentID,
	}
	o, err := f.orders.Update(ctx, orderID, patch)
	if err != nil {
		if f.records != nil {
			_ = f.records.MarkFailed(ctx, orderID, fmt.Sprintf("order_update_failed: %v", err))
		}
		// Payment id stays in the session; the retry will not create a
		// second payment.
		f.fail(orderID, CodePaymentFailed)
		return orders.Order{}, fmt.Errorf("complete order %s: %w", orderID, err)
	}

	if f.records != nil {
		if err := f.records.MarkDone(ctx, orderID, paymentID); err != nil {
			f.log.WithError(err).WithField("order", orderID).Warn("collection record mark-done failed")
		}
	}

	f.publishCompleted(ctx, o, driver, paymentID, amount, now)

	f.mu.Lock()
	delete(f.sessions, orderID)
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{
		"order":   orderID,
		"driver":  driver,
		"amount":  amount,
		"payment": paymentID,
	}).Info("delivery collected")
	return o, nil
}

func (f *Flow) publishCompleted(ctx context.Context, o orders.Order, driver, paymentID string, amount float64, now time.Time) {
	if f.events == nil {
		return
	}
	minutes, _ := workflow.ElapsedMinutes(o, now)
	ev := aws.DeliveryCompletedEvent{
		OrderID:         o.ID,
		DriverID:        driver,
		PaymentID:       paymentID,
		Amount:          amount,
		Commission:      workflow.Commission(amount, f.commissionRate),
		DeliveryMinutes: minutes,
		CompletedAt:     now,
		CorrelationID:   uuid.NewString(),
	}
	if err := f.events.SendDeliveryCompleted(ctx, ev); err != nil {
		f.log.WithError(err).WithField("order", o.ID).Warn("delivery event publish failed")
	}
}

// fail drops a submitting session back to the amount step, preserving the
// entered amount and clearing the processing flag so the driver can retry.
func (f *Flow) fail(orderID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[orderID]; ok {
		sess.processing = false
		sess.State = StateEntering
		sess.ValidationError = code
	}
}
