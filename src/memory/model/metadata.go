package model

// StringFromAny coerces a metadata value into a string, returning "" for
// anything that is not one.
func StringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

// FloatFromAny coerces numeric metadata values into a float64.
func FloatFromAny(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// VectorFromAny coerces a metadata value into an embedding vector. JSON
// round-trips turn []float32 into []any of float64, so both shapes are
// accepted.
func VectorFromAny(v any) []float32 {
	switch vec := v.(type) {
	case []float32:
		return vec
	case []float64:
		out := make([]float32, len(vec))
		for i, f := range vec {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(vec))
		for _, item := range vec {
			f, ok := FloatFromAny(item)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

// CloneMetadata copies a metadata map one level deep so stores never share
// mutable state with callers.
func CloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	clone := make(map[string]any, len(meta))
	for k, v := range meta {
		clone[k] = v
	}
	return clone
}
