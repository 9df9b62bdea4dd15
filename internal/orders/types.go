package orders

import "time"

// Fulfillment options.
const (
	OptionPickup   = "pickup"
	OptionDelivery = "delivery"
)

// Status values the workflow recognizes. Anything else means the order has
// not been started yet.
const (
	StatusPending    = "pending"
	StatusDelivering = "delivering"
	StatusDelivered  = "delivered"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Order is the canonical in-memory shape. Upstream field-name variants are
// folded into it at the fetch boundary; nothing downstream branches on which
// variant was present.
type Order struct {
	ID             string
	DeliveryOption string

	// Status and DeliveryStatus can disagree (starting a delivery writes
	// status=pending alongside deliveryStatus=delivering); classification in
	// the workflow package reconciles them.
	Status         string
	DeliveryStatus string

	AssignedDriver string

	DeliveryStartTime *time.Time
	DeliveryEndTime   *time.Time
	PaidAt            *time.Time

	IsDelivered bool
	IsPaid      bool

	Total float64

	// CustomerRef is either a plain id or a display string like "Customer #7".
	CustomerRef string

	Items []Item

	PaymentID string
}

// Item is a canonical order line item.
type Item struct {
	ProductRef string
	Quantity   int
	UnitPrice  float64
}
