package query

// ---------- Tipos de paginación / ordenamiento ----------

// OffsetPagination para paginación clásica
type OffsetPagination struct {
	Limit  int
	Offset int
}

// PageRequest traduce page (base 0) y size a limit/offset.
func PageRequest(page, size int) OffsetPagination {
	if page < 0 {
		page = 0
	}
	return OffsetPagination{Limit: size, Offset: page * size}
}

// Interfaz genérica para paginación
type Pagination interface{}

// Sort indica campo y dirección.
type Sort struct {
	Field string // ej. "created_at"
	Desc  bool
}
