package domain

import "errors"

var (
	ErrInvalidOrderRequest   = errors.New("invalid order request")
	ErrProductUnavailable    = errors.New("product unavailable")
	ErrSelfPurchaseForbidden = errors.New("buyers cannot purchase their own products")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAccessDenied     = errors.New("order access denied")
	ErrOrderAlreadyFinalized = errors.New("order already finalized")
	ErrEventAlreadyProcessed = errors.New("event already processed")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrMalformedEvent        = errors.New("malformed event")
)
