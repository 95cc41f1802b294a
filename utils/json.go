package utils

import (
	"encoding/json"
	"strings"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// Unmarshal JSON to generic struct
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}

// DecodeStringList decodes a stored JSON array of strings. Malformed stored
// data returns an error so callers can degrade to a safe placeholder instead
// of failing a whole batch.
func DecodeStringList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}
