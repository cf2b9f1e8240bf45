package http

import "github.com/gin-gonic/gin"

// RegisterOrderRoutes registra las rutas HTTP de órdenes; todas requieren comprador autenticado.
func RegisterOrderRoutes(r *gin.Engine, handler *OrderHandler, jwtSecret []byte) {
	orders := r.Group("/api/v1/orders", TraceContext(), Authenticate(jwtSecret))
	{
		orders.POST("", handler.CreateOrder)        // Crear orden (202, saga asíncrona)
		orders.GET("", handler.ListMyOrders)        // Mis órdenes paginadas
		orders.GET("/:orderId", handler.GetMyOrder) // Detalle de una orden propia
	}
}
