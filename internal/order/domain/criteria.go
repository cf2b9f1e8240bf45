package domain

import (
	shared "github.com/damian-zhang-1027/order-service/internal/shared/domain"
)

// --- Criterios específicos para Orders ---

// BuyerCriteria filtra por comprador ("mis órdenes").
type BuyerCriteria struct {
	BuyerUserID int64
}

func (c BuyerCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "buyer_user_id", Op: shared.OpEq, Value: c.BuyerUserID},
	}
}

// StatusCriteria filtra por estado de la saga.
type StatusCriteria struct {
	Status OrderStatus
}

func (c StatusCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "status", Op: shared.OpEq, Value: string(c.Status)},
	}
}

// AllowedOrderFields: columnas por las que se puede filtrar u ordenar.
var AllowedOrderFields = map[string]bool{
	"id":            true,
	"buyer_user_id": true,
	"status":        true,
	"total_amount":  true,
	"created_at":    true,
}
