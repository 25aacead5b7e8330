package utils

import "fmt"

// GetMapField pulls a typed value out of an untyped payload map. Agent
// results carry map[string]any payloads, so readers assert the value shape
// here instead of scattering type switches.
func GetMapField[T any](m map[string]any, key string) (T, error) {
	var zero T

	raw, ok := m[key]
	if !ok {
		return zero, fmt.Errorf("field '%s' not found in map", key)
	}
	value, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("field '%s' expected type %T, got %T", key, zero, raw)
	}
	return value, nil
}

// GetMapFieldOr is GetMapField with a fallback instead of an error.
func GetMapFieldOr[T any](m map[string]any, key string, fallback T) T {
	value, err := GetMapField[T](m, key)
	if err != nil {
		return fallback
	}
	return value
}
