package utils

import (
	"encoding/json"
	"fmt"
)

// UnmarshalAndHandle decodifica data en T y se lo pasa al handler.
// Un payload que no decodifica es permanente: reintentarlo no lo arregla.
func UnmarshalAndHandle[T any](data []byte, handler func(T) error) error {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return Permanent(fmt.Errorf("failed to unmarshal %T: %w", evt, err))
	}
	return handler(evt)
}
