package backend

import "time"

// The sales backend predates this service and is inconsistent about field
// names and id typing: totals arrive as `total` or `totalAmount`, line items
// as `products` or `items`, and ids as numbers or strings. DTOs keep the raw
// shapes; normalization into one canonical form happens in internal/orders.

// OrderDTO is the raw order payload from GET /orders.
type OrderDTO struct {
	ID             interface{} `json:"id"`
	DeliveryOption string      `json:"deliveryOption"`
	Status         string      `json:"status"`
	DeliveryStatus string      `json:"deliveryStatus"`
	AssignedDriver string      `json:"assignedDriver"`

	DeliveryStartTime *time.Time `json:"deliveryStartTime"`
	DeliveryEndTime   *time.Time `json:"deliveryEndTime"`
	PaidAt            *time.Time `json:"paidAt"`

	IsDelivered bool `json:"isDelivered"`
	IsPaid      bool `json:"isPaid"`

	Total       *float64 `json:"total"`
	TotalAmount *float64 `json:"totalAmount"`

	// Customer is either a numeric foreign key or a display string such as
	// "Customer #7".
	Customer interface{} `json:"customer"`

	Products []ItemDTO `json:"products"`
	Items    []ItemDTO `json:"items"`

	PaymentID string `json:"paymentId"`
}

// ItemDTO is a raw order line item.
type ItemDTO struct {
	Product   interface{} `json:"product"`
	ProductID interface{} `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     *float64    `json:"price"`
	UnitPrice *float64    `json:"unitPrice"`
}

// OrderPatch is a partial order update for PATCH /orders/{id}. Only the keys
// present are sent, matching the backend's partial-update contract.
type OrderPatch map[string]interface{}

// PaymentRequest is the payload for POST /payments.
type PaymentRequest struct {
	OrderID     string    `json:"orderId"`
	Amount      float64   `json:"amount"`
	CollectedBy string    `json:"collectedBy"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	CollectedAt time.Time `json:"collectedAt"`
	PaidAt      time.Time `json:"paidAt"`
}

// PaymentDTO is the created payment returned by the backend, including the
// server-assigned id.
type PaymentDTO struct {
	ID          interface{} `json:"id"`
	OrderID     string      `json:"orderId"`
	Amount      float64     `json:"amount"`
	CollectedBy string      `json:"collectedBy"`
	Method      string      `json:"method"`
	Status      string      `json:"status"`
	CollectedAt *time.Time  `json:"collectedAt"`
	PaidAt      *time.Time  `json:"paidAt"`
}

// CustomerDTO is a reference-table row from GET /customers.
type CustomerDTO struct {
	ID      interface{} `json:"id"`
	Name    string      `json:"name"`
	Address string      `json:"address"`
	Phone   string      `json:"phone"`
}

// ProductDTO is a reference-table row from GET /products.
type ProductDTO struct {
	ID    interface{} `json:"id"`
	Name  string      `json:"name"`
	Price float64     `json:"price"`
}
