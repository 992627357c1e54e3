package utils

import (
	"encoding/json"
)

// JsonEncode marshals payload to JSON. Strings and byte slices are taken as
// already encoded.
func JsonEncode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

func JsonDecodeByteStream[T any](data []byte) (*T, error) {
	var value T
	err := json.Unmarshal(data, &value)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
