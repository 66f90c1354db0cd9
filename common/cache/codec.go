package cache

import (
	"encoding"
	"fmt"
)

// Encode converts a value accepted by Cache.Set into its stored bytes.
func Encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case encoding.BinaryMarshaler:
		data, err := v.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshaling cache value: %w", err)
		}
		return data, nil
	default:
		return nil, ErrInvalidValue
	}
}

// Decode writes stored bytes into a destination accepted by Cache.Get.
func Decode(data []byte, value interface{}) error {
	switch v := value.(type) {
	case *string:
		*v = string(data)
	case *[]byte:
		*v = append((*v)[:0], data...)
	case encoding.BinaryUnmarshaler:
		return v.UnmarshalBinary(data)
	default:
		return ErrInvalidValue
	}
	return nil
}
