package enrich

// Flatten collapses a nested key-value structure into a single level,
// joining nested keys with sep (so {"a":{"b":1}} becomes {"a_b":1}).
// Leaf values are kept unchanged. Flattening an already-flat mapping
// returns an equal mapping.
func Flatten(nested map[string]any, sep string) map[string]any {
	out := make(map[string]any, len(nested))
	flattenInto(out, "", nested, sep)
	return out
}

func flattenInto(dst map[string]any, prefix string, src map[string]any, sep string) {
	for key, value := range src {
		path := key
		if prefix != "" {
			path = prefix + sep + key
		}
		if child, ok := value.(map[string]any); ok {
			flattenInto(dst, path, child, sep)
			continue
		}
		dst[path] = value
	}
}
