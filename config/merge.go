package config

// Merge deep-merges src into dst. Nested maps are merged key by key; any
// other value in src replaces the one in dst. Maps taken from src are copied
// so later changes to src do not leak into dst.
func Merge(dst, src map[string]any) {
	for k, v := range src {
		if mv, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				Merge(existing, mv)
				continue
			}
			cp := make(map[string]any, len(mv))
			Merge(cp, mv)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}
