// Package workflow classifies orders into delivery lifecycle buckets and
// computes the driver-facing values shown next to them. Everything here is a
// pure function of an order and a driver identity; no hidden state.
package workflow

import (
	"time"

	"deliveryflow/internal/orders"
)

// Bucket is a classification outcome for one order and one viewing driver.
type Bucket string

const (
	// BucketExcluded: not a delivery order, invisible to this workflow.
	BucketExcluded Bucket = "excluded"
	// BucketUnclaimed: no driver has claimed the order yet.
	BucketUnclaimed Bucket = "unclaimed"
	// BucketInProgress: the viewing driver is delivering it and it is unpaid.
	BucketInProgress Bucket = "in_progress"
	// BucketCompleted: delivered (by anyone) and closed out.
	BucketCompleted Bucket = "completed"
	// BucketClaimedElsewhere: visible in all-orders views but not actionable
	// by the viewing driver.
	BucketClaimedElsewhere Bucket = "claimed_elsewhere"
)

// Action is something a driver may do to an order.
type Action string

const (
	ActionStart   Action = "start_delivery"
	ActionCollect Action = "collect_payment"
)

// DefaultCommissionRate is the fixed driver cut applied to a collected total.
const DefaultCommissionRate = 0.10

// Classify buckets an order for a driver. Precedence matters: eligibility
// first, then claim state, then the viewer's own in-progress deliveries, then
// completion. Status and DeliveryStatus may disagree; a claim is in progress
// if either says "delivering" and the order is unpaid.
func Classify(o orders.Order, driver string) Bucket {
	if o.DeliveryOption != orders.OptionDelivery {
		return BucketExcluded
	}
	if o.AssignedDriver == "" {
		return BucketUnclaimed
	}
	if o.AssignedDriver == driver &&
		(o.DeliveryStatus == orders.StatusDelivering || o.Status == orders.StatusDelivering) &&
		!o.IsPaid {
		return BucketInProgress
	}
	if o.DeliveryStatus == orders.StatusDelivered || o.IsDelivered || o.Status == orders.StatusCompleted {
		return BucketCompleted
	}
	return BucketClaimedElsewhere
}

// Actions lists the legal driver actions for a bucket. Completed orders get
// none: nothing in this workflow mutates them further.
func Actions(b Bucket) []Action {
	switch b {
	case BucketUnclaimed:
		return []Action{ActionStart}
	case BucketInProgress:
		return []Action{ActionCollect}
	default:
		return nil
	}
}

// ElapsedMinutes is the in-progress window in whole minutes, floored. The
// window closes at DeliveryEndTime if set, otherwise at now. Undefined
// without a start time.
func ElapsedMinutes(o orders.Order, now time.Time) (int, bool) {
	if o.DeliveryStartTime == nil {
		return 0, false
	}
	end := now
	if o.DeliveryEndTime != nil {
		end = *o.DeliveryEndTime
	}
	d := end.Sub(*o.DeliveryStartTime)
	if d < 0 {
		d = 0
	}
	return int(d.Minutes()), true
}

// Commission is the driver cut of a collected total. A non-positive rate
// falls back to the default.
func Commission(total, rate float64) float64 {
	if rate <= 0 {
		rate = DefaultCommissionRate
	}
	return total * rate
}

// Classified pairs an order with its bucket for list rendering.
type Classified struct {
	Order   orders.Order
	Bucket  Bucket
	Actions []Action
}

// ForDriver buckets a snapshot for one driver, dropping excluded orders.
func ForDriver(snapshot []orders.Order, driver string) []Classified {
	out := make([]Classified, 0, len(snapshot))
	for _, o := range snapshot {
		b := Classify(o, driver)
		if b == BucketExcluded {
			continue
		}
		out = append(out, Classified{Order: o, Bucket: b, Actions: Actions(b)})
	}
	return out
}
