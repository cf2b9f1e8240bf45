package domain

// Tipos de evento tal y como viajan por el bus.
const (
	OrderCreated     = "ORDER_CREATED"
	OrderSucceededEv = "ORDER_SUCCEEDED"
	OrderFailedEv    = "ORDER_FAILED"
	PaymentSucceeded = "PAYMENT_SUCCEEDED"
	PaymentFailed    = "PAYMENT_FAILED"
)

// OrderAggregate es también el topic de salida.
const OrderAggregate = "orders"

type sagaStep struct {
	Next      OrderStatus
	EventType string
}

var paymentOutcomes = map[string]sagaStep{
	PaymentSucceeded: {Next: OrderSucceeded, EventType: OrderSucceededEv},
	PaymentFailed:    {Next: OrderFailed, EventType: OrderFailedEv},
}

// ResolvePaymentOutcome traduce un evento de pago al estado y evento siguientes.
func ResolvePaymentOutcome(eventType string) (OrderStatus, string, bool) {
	step, ok := paymentOutcomes[eventType]
	return step.Next, step.EventType, ok
}

// TerminalStatusFor es el inverso de cara a la analítica: ORDER_SUCCEEDED -> SUCCEEDED.
func TerminalStatusFor(eventType string) (OrderStatus, bool) {
	switch eventType {
	case OrderSucceededEv:
		return OrderSucceeded, true
	case OrderFailedEv:
		return OrderFailed, true
	}
	return "", false
}

// ---------------- Payloads ----------------

type OrderCreatedItem struct {
	ProductID int64 `json:"productId"`
	SellerID  int64 `json:"sellerId"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unitPrice"`
}

type OrderCreatedPayload struct {
	OrderID     int64              `json:"orderId"`
	BuyerUserID int64              `json:"buyerUserId"`
	TotalAmount int64              `json:"totalAmount"`
	Items       []OrderCreatedItem `json:"items"`
}

func NewOrderCreatedPayload(o *Order) OrderCreatedPayload {
	p := OrderCreatedPayload{
		OrderID:     o.ID,
		BuyerUserID: o.BuyerUserID,
		TotalAmount: o.TotalAmount,
		Items:       make([]OrderCreatedItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, OrderCreatedItem{
			ProductID: it.ProductID,
			SellerID:  it.SellerID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return p
}

// PaymentResultPayload: lo único que exigimos del payload de pagos.
// El resto de campos se reenvía tal cual en el evento de salida.
type PaymentResultPayload struct {
	OrderID     int64 `json:"orderId"`
	TotalAmount int64 `json:"totalAmount,omitempty"`
}
