package hub

// deepEqual compares two property values structurally: primitives by value,
// composites by recursive per-key comparison, slices by element type and
// value. Property maps only ever hold the types produced by the variant
// structs plus JSON-decoded composites, so the type switch below is the
// complete set; mismatched dynamic types are never equal.
func deepEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !deepEqual(v, ov) {
				return false
			}
		}
		return true

	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true

	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true

	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true

	default:
		// Primitives (bool, string, int, float64, ...) compare by value.
		// Different dynamic types (int vs float64) are intentionally
		// unequal: the variant structs always produce consistent types
		// for a given property.
		return a == b
	}
}
