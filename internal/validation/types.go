package validation

// EnterAmountRequest is the payload for the collection amount step. The
// tolerance check against the order total lives in the collection flow; here
// we only reject shapes that can never be valid.
type EnterAmountRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}
