package workflow

import "deliveryflow/internal/orders"

// StatusLabel maps a raw status to display text. Presentation only; the
// classification in Classify never reads these.
func StatusLabel(status string) string {
	switch status {
	case orders.StatusPending:
		return "Pending"
	case orders.StatusDelivering:
		return "Delivering"
	case orders.StatusDelivered, orders.StatusCompleted:
		return "Delivered"
	case orders.StatusCancelled:
		return "Cancelled"
	default:
		return "Ready for delivery"
	}
}
