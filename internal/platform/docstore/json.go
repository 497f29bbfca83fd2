package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Match reports whether the JSON object in data satisfies every filter.
// Field values are compared in their compact JSON encoding.
func Match(data []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	for _, f := range filters {
		raw, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		want, err := json.Marshal(f.Value)
		if err != nil {
			return false, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		var got bytes.Buffer
		if err := json.Compact(&got, raw); err != nil {
			return false, fmt.Errorf("compact field %s: %w", f.Field, err)
		}
		if !bytes.Equal(got.Bytes(), want) {
			return false, nil
		}
	}
	return true, nil
}

// Merge overlays fields onto the JSON object in data and returns the result.
func Merge(data []byte, fields map[string]interface{}) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		doc[k] = raw
	}
	return json.Marshal(doc)
}

// Encode marshals v to JSON. It exists so backends report encoding failures
// uniformly.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// ToMap converts v into a generic JSON object.
func ToMap(v interface{}) (map[string]interface{}, error) {
	data, err := Encode(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	return m, nil
}
