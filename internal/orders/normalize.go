package orders

import (
	"encoding/json"
	"fmt"
	"strconv"

	"deliveryflow/internal/backend"
)

// Normalize folds a raw backend order into the canonical shape. Preference
// rules: `total` over `totalAmount` (default 0), `products` over `items`,
// `price` over `unitPrice`. Ids are coerced to strings regardless of how the
// backend typed them.
func Normalize(dto backend.OrderDTO) Order {
	o := Order{
		ID:                CoerceID(dto.ID),
		DeliveryOption:    dto.DeliveryOption,
		Status:            dto.Status,
		DeliveryStatus:    dto.DeliveryStatus,
		AssignedDriver:    dto.AssignedDriver,
		DeliveryStartTime: dto.DeliveryStartTime,
		DeliveryEndTime:   dto.DeliveryEndTime,
		PaidAt:            dto.PaidAt,
		IsDelivered:       dto.IsDelivered,
		IsPaid:            dto.IsPaid,
		CustomerRef:       CoerceID(dto.Customer),
		PaymentID:         dto.PaymentID,
	}

	switch {
	case dto.Total != nil:
		o.Total = *dto.Total
	case dto.TotalAmount != nil:
		o.Total = *dto.TotalAmount
	}

	raw := dto.Products
	if len(raw) == 0 {
		raw = dto.Items
	}
	for _, it := range raw {
		o.Items = append(o.Items, normalizeItem(it))
	}

	return o
}

// NormalizeAll maps a fetched snapshot into canonical orders.
func NormalizeAll(dtos []backend.OrderDTO) []Order {
	out := make([]Order, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, Normalize(dto))
	}
	return out
}

func normalizeItem(dto backend.ItemDTO) Item {
	it := Item{Quantity: dto.Quantity}

	ref := dto.Product
	if ref == nil {
		ref = dto.ProductID
	}
	it.ProductRef = CoerceID(ref)

	switch {
	case dto.Price != nil:
		it.UnitPrice = *dto.Price
	case dto.UnitPrice != nil:
		it.UnitPrice = *dto.UnitPrice
	}
	return it
}

// CoerceID renders an id of unknown JSON type as a string. Numbers lose any
// spurious fractional part (JSON decodes them as float64).
func CoerceID(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
