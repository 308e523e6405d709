package config

// deepMerge folds src into dst, mutating and returning dst. Nested maps
// are merged key by key; any other value (scalar or slice/array) from
// src overwrites dst wholesale — arrays are never concatenated (§4.1).
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, srcVal := range src {
		if dstVal, ok := dst[key]; ok {
			dstMap, dstIsMap := dstVal.(map[string]any)
			srcMap, srcIsMap := srcVal.(map[string]any)
			if dstIsMap && srcIsMap {
				dst[key] = deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
	return dst
}

// diffPaths returns the dotted paths that changed between two merged
// maps, used to populate ChangeEvent.ChangedPaths.
func diffPaths(prefix string, before, after map[string]any) []string {
	var paths []string
	seen := map[string]bool{}
	for key := range before {
		seen[key] = true
	}
	for key := range after {
		seen[key] = true
	}
	for key := range seen {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		bv, bok := before[key]
		av, aok := after[key]
		if bok != aok {
			paths = append(paths, path)
			continue
		}
		bMap, bIsMap := bv.(map[string]any)
		aMap, aIsMap := av.(map[string]any)
		if bIsMap && aIsMap {
			paths = append(paths, diffPaths(path, bMap, aMap)...)
			continue
		}
		if !deepEqual(bv, av) {
			paths = append(paths, path)
		}
	}
	return paths
}

func deepEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !deepEqual(av, bv) {
				return false
			}
		}
		return true
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice && bIsSlice {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !deepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// cloneMap performs a deep copy so a Snapshot's backing map can be
// safely retained by subscribers after the resolver mutates further.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(vv)
		case []any:
			cp := make([]any, len(vv))
			copy(cp, vv)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
