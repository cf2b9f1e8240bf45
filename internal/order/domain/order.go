package domain

import (
	"fmt"
	"strconv"
	"time"

	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderSucceeded OrderStatus = "SUCCEEDED"
	OrderFailed    OrderStatus = "FAILED"
)

// IsTerminal: un estado terminal ya no cambia nunca.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderSucceeded || s == OrderFailed
}

// Importes siempre en unidades mínimas de la moneda (céntimos).
type Order struct {
	ID          int64       `json:"orderId"`
	BuyerUserID int64       `json:"buyerUserId"`
	Status      OrderStatus `json:"status"`
	TotalAmount int64       `json:"totalAmount"`
	CreatedAt   time.Time   `json:"createdAt"`
	Items       []OrderItem `json:"items"`
}

// OrderItem guarda el precio del producto en el momento de la compra.
type OrderItem struct {
	ID        int64 `json:"-"`
	OrderID   int64 `json:"-"`
	ProductID int64 `json:"productId"`
	SellerID  int64 `json:"sellerId"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unitPrice"`
}

func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// NewOrder crea la orden en PENDING con el total calculado a partir de las líneas.
func NewOrder(id, buyerUserID int64, items []OrderItem, now time.Time) *Order {
	o := &Order{
		ID:          id,
		BuyerUserID: buyerUserID,
		Status:      OrderPending,
		CreatedAt:   now,
	}
	for _, it := range items {
		it.OrderID = id
		o.Items = append(o.Items, it)
	}
	o.TotalAmount = o.ComputeTotal()
	return o
}

func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.Subtotal()
	}
	return total
}

// TransitionTo aplica el cambio de estado en memoria respetando la monotonía.
func (o *Order) TransitionTo(next OrderStatus) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: order %d is %s", ErrOrderAlreadyFinalized, o.ID, o.Status)
	}
	if !next.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

func (o *Order) PartitionKey() string {
	return strconv.FormatInt(o.ID, 10)
}

// OwnedBy comprueba que la orden pertenece al comprador.
func (o *Order) OwnedBy(buyerUserID int64) bool {
	return o.BuyerUserID == buyerUserID
}

var _ sharedBus.Keyer = (*Order)(nil)
